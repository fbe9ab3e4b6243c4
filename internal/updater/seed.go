package updater

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"loreweaver/internal/config"
	"loreweaver/internal/store"
)

// InitializeStory creates a project with its seed cast and world rules.
// Relationship targets are rewritten from character names to ids once the
// whole cast exists. Returns the new project id.
func (u *Updater) InitializeStory(ctx context.Context, seed config.StorySeed) (string, error) {
	if err := seed.Validate(); err != nil {
		return "", fmt.Errorf("initializing story: %w", err)
	}

	projectID := uuid.NewString()
	lock := u.locks.Get(projectID)
	lock.Lock()
	defer lock.Unlock()

	err := u.structured.CreateProject(ctx, store.Project{
		ID:          projectID,
		Name:        seed.Name,
		Description: seed.Description,
	})
	if err != nil {
		return "", fmt.Errorf("initializing story: %w", err)
	}

	idsByName := make(map[string]string, len(seed.Characters))
	for _, character := range seed.Characters {
		idsByName[strings.ToLower(character.Name)] = uuid.NewString()
	}

	for _, character := range seed.Characters {
		relationships := make(map[string]string, len(character.Relationships))
		for kind, target := range character.Relationships {
			relationships[kind] = idsByName[strings.ToLower(target)]
		}
		state := character.CurrentState
		if state == nil {
			state = map[string]any{}
		}
		err := u.structured.CreateCharacter(ctx, store.Character{
			ID:             idsByName[strings.ToLower(character.Name)],
			ProjectID:      projectID,
			Name:           character.Name,
			CorePsychology: character.CorePsychology,
			CurrentState:   state,
			Relationships:  relationships,
		})
		if err != nil {
			return "", fmt.Errorf("initializing story: creating character %s: %w", character.Name, err)
		}
	}

	for i, rule := range seed.WorldRules {
		scope := rule.ActiveScope
		if strings.TrimSpace(scope) == "" {
			scope = "global"
		}
		err := u.structured.CreateWorldRule(ctx, store.WorldRule{
			ID:          uuid.NewString(),
			ProjectID:   projectID,
			Category:    strings.ToLower(rule.Category),
			RuleText:    rule.RuleText,
			ActiveScope: scope,
			Active:      true,
		})
		if err != nil {
			return "", fmt.Errorf("initializing story: creating world rule %d: %w", i, err)
		}
	}

	u.log.Info("story initialized",
		zap.String("project_id", projectID),
		zap.String("name", seed.Name),
		zap.Int("characters", len(seed.Characters)),
		zap.Int("world_rules", len(seed.WorldRules)))

	return projectID, nil
}
