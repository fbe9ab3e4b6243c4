// Package updater owns every durable write that follows an approved draft:
// sequence assignment, the timeline event, state drift application, the
// episodic record, and the scene row. It is the only code that takes the
// per-project write lock.
package updater

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"loreweaver/internal/embedding"
	"loreweaver/internal/episodic"
	"loreweaver/internal/store"
)

// driftKey is the list-valued state key drift descriptors accumulate under
// until a later scene or the synthesis pass resolves them into firm state.
const driftKey = "recent_developments"

type Updater struct {
	structured store.Store
	episodic   episodic.Store
	embedder   embedding.Embedder
	locks      *ProjectLocks
	log        *zap.Logger
}

func New(structured store.Store, ep episodic.Store, embedder embedding.Embedder, locks *ProjectLocks, log *zap.Logger) *Updater {
	return &Updater{structured: structured, episodic: ep, embedder: embedder, locks: locks, log: log}
}

func (u *Updater) Locks() *ProjectLocks { return u.locks }

// Draft is an approved scene ready to commit.
type Draft struct {
	ProjectID           string
	Prompt              string
	SceneText           string
	Location            string
	Summary             string
	EmotionalValence    string
	ParticipantIDs      []string
	KeyItems            []string
	CausalPrerequisites []string
}

type CommitResult struct {
	SceneID       string
	SequenceIndex int
}

// Commit persists the draft. The episodic record is written first at the
// expected sequence index; if the structured transaction then fails, the
// record is deleted again so neither store ends up with a partial scene.
// Character state patches only ever land inside the structured transaction.
func (u *Updater) Commit(ctx context.Context, draft Draft, report store.CriticReport) (*CommitResult, error) {
	vec, err := u.embedder.Embed(ctx, draft.Summary, embedding.TaskDocument)
	if err != nil {
		return nil, fmt.Errorf("committing scene: embedding summary: %w", err)
	}

	lock := u.locks.Get(draft.ProjectID)
	lock.Lock()
	defer lock.Unlock()

	maxSeq, err := u.structured.MaxSequenceIndex(ctx, draft.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("committing scene: reading sequence index: %w", err)
	}
	next := maxSeq + 1

	patches, err := u.driftPatches(ctx, draft.ProjectID, draft.ParticipantIDs, report.Metrics.StateDriftDetected)
	if err != nil {
		return nil, fmt.Errorf("committing scene: %w", err)
	}
	newRules := u.detectedRules(draft.ProjectID, report.NewWorldRules)

	sceneID := uuid.NewString()
	record := episodic.Record{
		SceneID:          sceneID,
		ProjectID:        draft.ProjectID,
		SequenceIndex:    next,
		Summary:          draft.Summary,
		EmotionalValence: draft.EmotionalValence,
		ParticipantIDs:   draft.ParticipantIDs,
		KeyItems:         draft.KeyItems,
		Embedding:        vec,
	}
	if err := u.episodic.Add(ctx, record); err != nil {
		return nil, fmt.Errorf("committing scene: recording episodic memory: %w", err)
	}

	seq, err := u.structured.CommitScene(ctx, store.CommitInput{
		ProjectID:           draft.ProjectID,
		SceneID:             sceneID,
		Location:            draft.Location,
		ParticipantIDs:      draft.ParticipantIDs,
		Summary:             draft.Summary,
		CausalPrerequisites: draft.CausalPrerequisites,
		Prompt:              draft.Prompt,
		SceneText:           draft.SceneText,
		Report:              report,
		StatePatches:        patches,
		NewRules:            newRules,
	})
	if err != nil {
		if derr := u.episodic.DeleteByScene(ctx, draft.ProjectID, sceneID); derr != nil {
			u.log.Error("orphaned episodic record after failed commit",
				zap.String("project_id", draft.ProjectID),
				zap.String("scene_id", sceneID),
				zap.Error(derr))
		}
		return nil, fmt.Errorf("committing scene: %w", err)
	}

	u.log.Info("scene committed",
		zap.String("project_id", draft.ProjectID),
		zap.String("scene_id", sceneID),
		zap.Int("sequence_index", seq),
		zap.Int("drift_items", len(report.Metrics.StateDriftDetected)),
		zap.Int("new_rules", len(newRules)))

	return &CommitResult{SceneID: sceneID, SequenceIndex: seq}, nil
}

// DeleteScene removes a scene from both stores and renumbers what follows.
// The structured delete commits first; if the episodic cleanup then fails,
// the stale record stays behind until the next audit or retry flushes it.
func (u *Updater) DeleteScene(ctx context.Context, projectID, sceneID string) (int, error) {
	lock := u.locks.Get(projectID)
	lock.Lock()
	defer lock.Unlock()

	seq, err := u.structured.DeleteScene(ctx, projectID, sceneID)
	if err != nil {
		return 0, fmt.Errorf("deleting scene: %w", err)
	}
	if err := u.episodic.DeleteByScene(ctx, projectID, sceneID); err != nil {
		u.log.Error("episodic store out of step after scene delete",
			zap.String("project_id", projectID),
			zap.String("scene_id", sceneID),
			zap.Error(err))
		return 0, fmt.Errorf("deleting scene: removing episodic record: %w", err)
	}
	if err := u.episodic.ShiftAfter(ctx, projectID, seq); err != nil {
		u.log.Error("episodic store out of step after scene delete",
			zap.String("project_id", projectID),
			zap.String("scene_id", sceneID),
			zap.Error(err))
		return 0, fmt.Errorf("deleting scene: renumbering episodic records: %w", err)
	}
	return seq, nil
}

// detectedRules promotes critic-detected rules to world rule rows. A rule
// with an unparseable scope or empty text is logged and skipped; a bad
// descriptor must not sink an approved scene.
func (u *Updater) detectedRules(projectID string, detected []store.DetectedRule) []store.WorldRule {
	var rules []store.WorldRule
	for _, d := range detected {
		if strings.TrimSpace(d.RuleText) == "" {
			continue
		}
		scope := strings.TrimSpace(d.ActiveScope)
		if scope == "" {
			scope = "global"
		}
		if _, err := store.ParseScope(scope); err != nil {
			u.log.Warn("detected world rule has invalid scope",
				zap.String("project_id", projectID),
				zap.String("rule_text", d.RuleText),
				zap.Error(err))
			continue
		}
		category := strings.ToLower(strings.TrimSpace(d.Category))
		if category == "" {
			category = "custom"
		}
		rules = append(rules, store.WorldRule{
			ID:          uuid.NewString(),
			ProjectID:   projectID,
			Category:    category,
			RuleText:    d.RuleText,
			ActiveScope: scope,
			Active:      true,
		})
	}
	return rules
}

// driftPatches turns drift descriptors into state patches for the
// participants they name. A descriptor naming no participant is logged and
// skipped rather than guessed at.
func (u *Updater) driftPatches(ctx context.Context, projectID string, participantIDs, drift []string) ([]store.StatePatch, error) {
	if len(drift) == 0 {
		return nil, nil
	}

	type working struct {
		character *store.Character
		state     map[string]any
		touched   bool
	}
	participants := make([]*working, 0, len(participantIDs))
	for _, id := range participantIDs {
		character, err := u.structured.GetCharacter(ctx, projectID, id)
		if err != nil {
			return nil, fmt.Errorf("resolving participant %s: %w", id, err)
		}
		participants = append(participants, &working{character: character, state: character.CurrentState})
	}

	for _, note := range drift {
		matched := false
		for _, p := range participants {
			if strings.Contains(strings.ToLower(note), strings.ToLower(p.character.Name)) {
				p.state = store.AppendNote(p.state, driftKey, note)
				p.touched = true
				matched = true
			}
		}
		if !matched {
			u.log.Warn("drift descriptor names no participant",
				zap.String("project_id", projectID),
				zap.String("descriptor", note))
		}
	}

	var patches []store.StatePatch
	for _, p := range participants {
		if !p.touched {
			continue
		}
		patches = append(patches, store.StatePatch{
			CharacterID: p.character.ID,
			Set:         map[string]any{driftKey: p.state[driftKey]},
		})
	}
	return patches, nil
}
