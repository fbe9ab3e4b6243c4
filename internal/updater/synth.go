package updater

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"loreweaver/internal/embedding"
	"loreweaver/internal/llm"
	"loreweaver/internal/store"
)

// Dispatcher is the synthesize slice of llm.Provider.
type Dispatcher interface {
	Synthesize(ctx context.Context, req llm.SynthesizeRequest) (*llm.SynthesisResult, error)
}

// Synthesizer runs the slow consolidation pass: re-read recent raw scenes
// end to end, correct state the fast critic missed, and replace episodic
// summaries with better ones. Best effort; its failures never reach the
// request path.
type Synthesizer struct {
	structured store.Store
	episodic   episodicWriter
	embedder   embedding.Embedder
	dispatcher Dispatcher
	locks      *ProjectLocks
	every      int
	log        *zap.Logger
}

type episodicWriter interface {
	ReplaceSummary(ctx context.Context, projectID, sceneID, summary string, embedding []float32) error
}

func NewSynthesizer(structured store.Store, ep episodicWriter, embedder embedding.Embedder,
	dispatcher Dispatcher, locks *ProjectLocks, every int, log *zap.Logger) *Synthesizer {
	if every <= 0 {
		every = 5
	}
	return &Synthesizer{
		structured: structured,
		episodic:   ep,
		embedder:   embedder,
		dispatcher: dispatcher,
		locks:      locks,
		every:      every,
		log:        log,
	}
}

// Due reports whether a commit at the given sequence index should trigger
// a synthesis pass.
func (s *Synthesizer) Due(sequenceIndex int) bool {
	return sequenceIndex > 0 && sequenceIndex%s.every == 0
}

// Run synthesizes over the last window of committed scenes. The model read
// happens without any lock; only the write step takes the project lock.
func (s *Synthesizer) Run(ctx context.Context, projectID string) error {
	scenes, err := s.structured.RecentScenes(ctx, projectID, s.every)
	if err != nil {
		return fmt.Errorf("synthesis: reading recent scenes: %w", err)
	}
	if len(scenes) == 0 {
		return nil
	}
	characters, err := s.structured.ListCharacters(ctx, projectID, false)
	if err != nil {
		return fmt.Errorf("synthesis: listing characters: %w", err)
	}

	result, err := s.dispatcher.Synthesize(ctx, llm.SynthesizeRequest{
		RawHistory: renderHistory(scenes, characters),
	})
	if err != nil {
		return fmt.Errorf("synthesis: %w", err)
	}

	// Embeddings before the lock; they are the slow part of the write step.
	embedded := make(map[string][]float32, len(result.Summaries))
	for _, summary := range result.Summaries {
		vec, err := s.embedder.Embed(ctx, summary.Summary, embedding.TaskDocument)
		if err != nil {
			return fmt.Errorf("synthesis: embedding summary: %w", err)
		}
		embedded[summary.SceneID] = vec
	}

	lock := s.locks.Get(projectID)
	lock.Lock()
	defer lock.Unlock()

	for _, correction := range result.StateCorrections {
		character, err := s.structured.GetCharacterByName(ctx, projectID, correction.Character)
		if err != nil {
			s.log.Warn("synthesis correction for unknown character",
				zap.String("project_id", projectID),
				zap.String("character", correction.Character),
				zap.Error(err))
			continue
		}
		merged := store.MergeState(character.CurrentState, correction.Set)
		if err := s.structured.UpdateCharacterState(ctx, projectID, character.ID, merged); err != nil {
			return fmt.Errorf("synthesis: correcting %s: %w", correction.Character, err)
		}
	}

	for _, summary := range result.Summaries {
		if _, err := s.structured.GetScene(ctx, projectID, summary.SceneID); err != nil {
			s.log.Warn("synthesis summary for unknown scene",
				zap.String("project_id", projectID),
				zap.String("scene_id", summary.SceneID),
				zap.Error(err))
			continue
		}
		if err := s.episodic.ReplaceSummary(ctx, projectID, summary.SceneID, summary.Summary, embedded[summary.SceneID]); err != nil {
			return fmt.Errorf("synthesis: replacing summary for %s: %w", summary.SceneID, err)
		}
	}

	s.log.Info("synthesis pass complete",
		zap.String("project_id", projectID),
		zap.Int("corrections", len(result.StateCorrections)),
		zap.Int("summaries", len(result.Summaries)))
	return nil
}

func renderHistory(scenes []store.Scene, characters []store.Character) string {
	var b strings.Builder
	b.WriteString("## Character States\n")
	for _, c := range characters {
		b.WriteString(fmt.Sprintf("%s (core: %s)\n", c.Name, c.CorePsychology))
		for key, value := range c.CurrentState {
			b.WriteString(fmt.Sprintf("  %s: %v\n", key, value))
		}
	}
	b.WriteString("\n## Scenes\n")
	for _, scene := range scenes {
		b.WriteString(fmt.Sprintf("### Scene %d (id %s)\n%s\n\n", scene.SequenceIndex, scene.ID, scene.SceneText))
	}
	return strings.TrimRight(b.String(), "\n")
}
