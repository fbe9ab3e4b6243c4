// Package pipeline orchestrates one scene generation request through
// planning, execution, critique, bounded retry, and commit. Serialization
// of commits is the updater's job; the orchestrator holds no durable lock.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"loreweaver/internal/assembler"
	"loreweaver/internal/config"
	"loreweaver/internal/critic"
	"loreweaver/internal/embedding"
	"loreweaver/internal/llm"
	"loreweaver/internal/store"
	"loreweaver/internal/updater"
)

// timelineDigestWindow bounds how many trailing events the critic sees.
const timelineDigestWindow = 10

type Pipeline struct {
	structured store.Store
	assembler  *assembler.Assembler
	router     *llm.Router
	embedder   embedding.Embedder
	critic     *critic.Critic
	updater    *updater.Updater
	synth      *updater.Synthesizer
	cfg        config.PipelineConfig
	log        *zap.Logger
}

func New(structured store.Store, asm *assembler.Assembler, router *llm.Router,
	embedder embedding.Embedder, reviewer *critic.Critic, up *updater.Updater,
	synth *updater.Synthesizer, cfg config.PipelineConfig, log *zap.Logger) *Pipeline {
	return &Pipeline{
		structured: structured,
		assembler:  asm,
		router:     router,
		embedder:   embedder,
		critic:     reviewer,
		updater:    up,
		synth:      synth,
		cfg:        cfg,
		log:        log,
	}
}

type Request struct {
	ProjectID string
	Prompt    string
	Location  string

	// CharacterNames selects the active cast. Empty means every
	// non-retired character in the project.
	CharacterNames []string

	// CorrectiveFeedback seeds the first execution attempt, letting a
	// caller retry a rejected scene with its critique attached.
	CorrectiveFeedback string
}

type Result struct {
	SceneID       string
	SceneText     string
	SequenceIndex int
	Report        *store.CriticReport
	LocationUsed  string
}

// GenerateScene runs the full pipeline. Failures are always *Failure.
func (p *Pipeline) GenerateScene(ctx context.Context, req Request) (*Result, error) {
	cast, failure := p.validate(ctx, req)
	if failure != nil {
		return nil, failure
	}

	planBundle, err := p.assembler.Assemble(ctx, assembler.Request{
		ProjectID:        req.ProjectID,
		ActiveCharacters: cast,
		Location:         req.Location,
	})
	if err != nil {
		return nil, failf(KindStoreUnavailable, err, "%v", err)
	}

	outline, failure := p.plan(ctx, planBundle.Render(), req.Prompt)
	if failure != nil {
		return nil, failure
	}

	intentVec, err := p.embedder.Embed(ctx, outline.IntentSummary, embedding.TaskQuery)
	if err != nil {
		return nil, failf(KindProviderUnavailable, err, "embedding intent: %v", err)
	}

	bundle, err := p.assembler.Assemble(ctx, assembler.Request{
		ProjectID:        req.ProjectID,
		ActiveCharacters: cast,
		Location:         req.Location,
		SceneIntent:      outline.IntentSummary,
		IntentVec:        intentVec,
	})
	if err != nil {
		return nil, failf(KindStoreUnavailable, err, "%v", err)
	}

	events, err := p.structured.ListTimeline(ctx, req.ProjectID)
	if err != nil {
		return nil, failf(KindStoreUnavailable, err, "%v", err)
	}
	digest := events
	if len(digest) > timelineDigestWindow {
		digest = digest[len(digest)-timelineDigestWindow:]
	}

	sceneText, report, failure := p.draftAndReview(ctx, bundle.Render(), outline, cast, digest, req.CorrectiveFeedback)
	if failure != nil {
		return nil, failure
	}

	var prerequisites []string
	if len(events) > 0 {
		prerequisites = []string{events[len(events)-1].ID}
	}
	participantIDs := make([]string, 0, len(cast))
	for _, c := range cast {
		participantIDs = append(participantIDs, c.ID)
	}

	committed, err := p.updater.Commit(ctx, updater.Draft{
		ProjectID:           req.ProjectID,
		Prompt:              req.Prompt,
		SceneText:           sceneText,
		Location:            req.Location,
		Summary:             outline.IntentSummary,
		EmotionalValence:    outline.TargetEmotionalShift,
		ParticipantIDs:      participantIDs,
		KeyItems:            outline.KeyItems,
		CausalPrerequisites: prerequisites,
	}, *report)
	if err != nil {
		return nil, commitFailure(err)
	}

	p.maybeSynthesize(req.ProjectID, committed.SequenceIndex)

	return &Result{
		SceneID:       committed.SceneID,
		SceneText:     sceneText,
		SequenceIndex: committed.SequenceIndex,
		Report:        report,
		LocationUsed:  req.Location,
	}, nil
}

// validate rejects malformed requests before any model call and resolves
// the active cast to live character rows.
func (p *Pipeline) validate(ctx context.Context, req Request) ([]store.Character, *Failure) {
	if strings.TrimSpace(req.ProjectID) == "" {
		return nil, failf(KindInvalidRequest, nil, "project id is required")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, failf(KindInvalidRequest, nil, "prompt is required")
	}

	if _, err := p.structured.GetProject(ctx, req.ProjectID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, failf(KindInvalidRequest, err, "project %s does not exist", req.ProjectID)
		}
		return nil, failf(KindStoreUnavailable, err, "%v", err)
	}

	if len(req.CharacterNames) == 0 {
		cast, err := p.structured.ListCharacters(ctx, req.ProjectID, false)
		if err != nil {
			return nil, failf(KindStoreUnavailable, err, "%v", err)
		}
		if len(cast) == 0 {
			return nil, failf(KindInvalidRequest, nil, "project has no characters")
		}
		return cast, nil
	}

	cast := make([]store.Character, 0, len(req.CharacterNames))
	for _, name := range req.CharacterNames {
		character, err := p.structured.GetCharacterByName(ctx, req.ProjectID, name)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, failf(KindInvalidRequest, err, "unknown character: %s", name)
			}
			return nil, failf(KindStoreUnavailable, err, "%v", err)
		}
		if character.Retired {
			return nil, failf(KindInvalidRequest, nil, "character is retired: %s", name)
		}
		cast = append(cast, *character)
	}
	return cast, nil
}

func (p *Pipeline) plan(ctx context.Context, contextBlock, prompt string) (*llm.Outline, *Failure) {
	provider, err := p.router.Provider(llm.CapabilityPlan)
	if err != nil {
		return nil, failf(KindProviderUnavailable, err, "%v", err)
	}

	dctx, cancel := p.dispatchContext(ctx)
	defer cancel()

	outline, err := provider.Plan(dctx, llm.PlanRequest{Context: contextBlock, UserPrompt: prompt})
	if err != nil {
		return nil, failf(KindProviderUnavailable, err, "planning: %v", err)
	}
	return outline, nil
}

// draftAndReview runs execute then critique, retrying execution with the
// critique appended up to the configured retry bound.
func (p *Pipeline) draftAndReview(ctx context.Context, contextBlock string, outline *llm.Outline,
	cast []store.Character, digest []store.TimelineEvent, feedback string) (string, *store.CriticReport, *Failure) {

	executor, err := p.router.Provider(llm.CapabilityExecute)
	if err != nil {
		return "", nil, failf(KindProviderUnavailable, err, "%v", err)
	}

	attempts := 1 + p.cfg.Retries()
	var lastText string
	var lastReport *store.CriticReport
	for attempt := range attempts {
		dctx, cancel := p.dispatchContext(ctx)
		text, err := executor.Execute(dctx, llm.ExecuteRequest{
			Context:            contextBlock,
			Outline:            *outline,
			CorrectiveFeedback: feedback,
		})
		cancel()
		if err != nil {
			return "", nil, failf(KindProviderUnavailable, err, "executing: %v", err)
		}

		rctx, cancel := p.dispatchContext(ctx)
		report, err := p.critic.Review(rctx, critic.Draft{
			SceneText:  text,
			Characters: cast,
			Timeline:   digest,
		})
		cancel()
		if err != nil {
			return "", nil, failf(KindProviderUnavailable, err, "%v", err)
		}

		if report.Approved {
			return text, report, nil
		}

		lastText, lastReport = text, report
		feedback = rejectionFeedback(report)
		p.log.Info("draft rejected",
			zap.Int("attempt", attempt+1),
			zap.Float64("trait_adherence", report.Metrics.TraitAdherenceScore),
			zap.Int("temporal_flags", report.Metrics.TemporalContinuityFlags))
	}

	failure := failf(KindRejected, nil, "draft rejected after %d attempts", attempts)
	failure.Draft = lastText
	failure.Report = lastReport
	return "", nil, failure
}

func rejectionFeedback(report *store.CriticReport) string {
	var b strings.Builder
	b.WriteString(report.Justification)
	if report.Metrics.TemporalContinuityFlags > 0 {
		fmt.Fprintf(&b, "\nThe draft contradicts established facts in %d place(s).",
			report.Metrics.TemporalContinuityFlags)
	}
	for _, drift := range report.Metrics.StateDriftDetected {
		b.WriteString("\nUnrecorded state change: " + drift)
	}
	return b.String()
}

func (p *Pipeline) dispatchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.cfg.DispatchTimeout())
}

// maybeSynthesize kicks the consolidation pass off the request path. It
// runs detached with its own deadline; failures are logged and dropped.
func (p *Pipeline) maybeSynthesize(projectID string, sequenceIndex int) {
	if p.synth == nil || !p.synth.Due(sequenceIndex) {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if err := p.synth.Run(ctx, projectID); err != nil {
			p.log.Warn("synthesis pass failed",
				zap.String("project_id", projectID),
				zap.Error(err))
		}
	}()
}
