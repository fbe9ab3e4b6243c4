package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrSequenceConflict reports a duplicate (project, sequence_index) pair
	// during commit. Two writers raced; exactly one of them sees this.
	ErrSequenceConflict = errors.New("sequence index conflict")
)

type Store interface {
	Close(ctx context.Context) error
	EnsureSchema(ctx context.Context) error

	CreateProject(ctx context.Context, p Project) error
	GetProject(ctx context.Context, id string) (*Project, error)
	ListProjects(ctx context.Context) ([]Project, error)
	DeleteProject(ctx context.Context, id string) error

	CreateCharacter(ctx context.Context, c Character) error
	GetCharacter(ctx context.Context, projectID, id string) (*Character, error)
	GetCharacterByName(ctx context.Context, projectID, name string) (*Character, error)
	ListCharacters(ctx context.Context, projectID string, includeRetired bool) ([]Character, error)
	UpdateCharacterState(ctx context.Context, projectID, characterID string, state map[string]any) error
	RetireCharacter(ctx context.Context, projectID, id string) error

	CreateWorldRule(ctx context.Context, r WorldRule) error
	ListWorldRules(ctx context.Context, projectID string, onlyActive bool) ([]WorldRule, error)
	DeactivateWorldRule(ctx context.Context, projectID, id string) error

	ListTimeline(ctx context.Context, projectID string) ([]TimelineEvent, error)
	MaxSequenceIndex(ctx context.Context, projectID string) (int, error)
	ListScenes(ctx context.Context, projectID string) ([]Scene, error)
	GetScene(ctx context.Context, projectID, sceneID string) (*Scene, error)
	RecentScenes(ctx context.Context, projectID string, n int) ([]Scene, error)

	// CommitScene applies every durable effect of an approved draft in one
	// transaction: sequence assignment, timeline event, character state
	// patches, new world rules, and the scene row. Returns the assigned
	// sequence index, or ErrSequenceConflict when a concurrent commit won.
	CommitScene(ctx context.Context, in CommitInput) (int, error)

	// DeleteScene removes the scene and timeline event, renumbers every
	// later event down by one, and strips causal prerequisite references to
	// the deleted event. Returns the removed sequence index.
	DeleteScene(ctx context.Context, projectID, sceneID string) (int, error)
}
