// Package episodic stores one similarity-searchable record per committed
// scene. Records share their scene's id and lifecycle: created on commit,
// deleted on scene deletion, never mutated except by the synthesis pass.
package episodic

import (
	"context"
	"time"
)

type Record struct {
	SceneID          string
	ProjectID        string
	SequenceIndex    int
	Summary          string
	EmotionalValence string
	ParticipantIDs   []string
	KeyItems         []string
	Embedding        []float32
	CreatedAt        time.Time
}

type Match struct {
	Record
	Similarity float64
}

type Store interface {
	Close(ctx context.Context) error
	EnsureSchema(ctx context.Context) error

	Add(ctx context.Context, r Record) error

	// Search returns the top-k records for the project ranked by cosine
	// similarity descending, ties broken by larger sequence index.
	// Records whose sequence index appears in excludeSeq are skipped.
	Search(ctx context.Context, projectID string, query []float32, k int, excludeSeq []int) ([]Match, error)

	DeleteByScene(ctx context.Context, projectID, sceneID string) error

	// ShiftAfter renumbers records past a deleted sequence index down by
	// one, mirroring the structured store's renumbering policy.
	ShiftAfter(ctx context.Context, projectID string, removedSeq int) error

	CountForProject(ctx context.Context, projectID string) (int, error)
	ListForProject(ctx context.Context, projectID string) ([]Record, error)

	// ReplaceSummary swaps in a higher-quality summary and embedding
	// produced by the synthesis pass.
	ReplaceSummary(ctx context.Context, projectID, sceneID, summary string, embedding []float32) error
}
