package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"loreweaver/internal/assembler"
	"loreweaver/internal/config"
	"loreweaver/internal/critic"
	"loreweaver/internal/embedding"
	"loreweaver/internal/episodic"
	"loreweaver/internal/llm"
	"loreweaver/internal/store"
	"loreweaver/internal/store/sqlite"
	"loreweaver/internal/updater"
)

// scriptProvider serves all four capabilities from canned responses.
type scriptProvider struct {
	mu           sync.Mutex
	planErr      error
	executeErr   error
	executeCalls []llm.ExecuteRequest
	reports      []*store.CriticReport
}

func (s *scriptProvider) Name() string { return "script" }

func (s *scriptProvider) Supports(llm.Capability) bool { return true }

func (s *scriptProvider) Plan(context.Context, llm.PlanRequest) (*llm.Outline, error) {
	if s.planErr != nil {
		return nil, s.planErr
	}
	return &llm.Outline{
		IntentSummary:        "Mira crosses the ford under a storm",
		TargetEmotionalShift: "resolve to dread",
		RequiredBeats:        []string{"the water rises"},
	}, nil
}

func (s *scriptProvider) Execute(_ context.Context, req llm.ExecuteRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.executeErr != nil {
		return "", s.executeErr
	}
	s.executeCalls = append(s.executeCalls, req)
	return fmt.Sprintf("Draft %d: the river ran high.", len(s.executeCalls)), nil
}

func (s *scriptProvider) Critique(context.Context, llm.CritiqueRequest) (*store.CriticReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.reports) == 0 {
		return &store.CriticReport{
			Metrics: store.CriticMetrics{TraitAdherenceScore: 0.9, StateDriftDetected: []string{}},
		}, nil
	}
	report := s.reports[0]
	if len(s.reports) > 1 {
		s.reports = s.reports[1:]
	}
	out := *report
	return &out, nil
}

func (s *scriptProvider) Synthesize(context.Context, llm.SynthesizeRequest) (*llm.SynthesisResult, error) {
	return &llm.SynthesisResult{StateCorrections: []llm.StateCorrection{}, Summaries: []llm.SceneSummary{}}, nil
}

func rejectingReport(justification string) *store.CriticReport {
	return &store.CriticReport{
		Metrics: store.CriticMetrics{
			TraitAdherenceScore: 0.3,
			StateDriftDetected:  []string{},
		},
		Justification: justification,
	}
}

func newTestPipeline(t *testing.T, provider llm.Provider) (*Pipeline, *sqlite.Client, *episodic.SQLiteStore) {
	t.Helper()
	ctx := context.Background()

	structured, err := sqlite.New(ctx, "sqlite://:memory:")
	if err != nil {
		t.Fatalf("opening structured store: %v", err)
	}
	t.Cleanup(func() { structured.Close(ctx) })
	if err := structured.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensuring schema: %v", err)
	}

	ep, err := episodic.NewSQLite(ctx, "sqlite://:memory:")
	if err != nil {
		t.Fatalf("opening episodic store: %v", err)
	}
	t.Cleanup(func() { ep.Close(ctx) })
	if err := ep.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensuring episodic schema: %v", err)
	}

	if err := structured.CreateProject(ctx, store.Project{ID: "proj-1", Name: "ash"}); err != nil {
		t.Fatalf("creating project: %v", err)
	}
	err = structured.CreateCharacter(ctx, store.Character{
		ID: "char-1", ProjectID: "proj-1", Name: "Mira",
		CorePsychology: "cautious", CurrentState: map[string]any{},
	})
	if err != nil {
		t.Fatalf("creating character: %v", err)
	}

	router, err := llm.NewRouter(config.RoutingConfig{
		Plan: "script", Execute: "script", Critique: "script", Synthesize: "script",
	}, map[string]llm.Provider{"script": provider})
	if err != nil {
		t.Fatalf("building router: %v", err)
	}

	embedder := embedding.NewHashEmbedder(32)
	locks := updater.NewProjectLocks()
	log := zap.NewNop()
	up := updater.New(structured, ep, embedder, locks, log)
	asm := assembler.New(structured, ep, config.ContextConfig{
		Tier1Budget: 1000, Tier2Budget: 2000, Tier3Budget: 2000,
		RecentScenes: 3, EpisodicTopK: 3,
	})
	reviewer := critic.New(provider, 0.7)
	retries := 1
	cfg := config.PipelineConfig{MaxRetries: &retries, DispatchTimeoutSeconds: 30}

	return New(structured, asm, router, embedder, reviewer, up, nil, cfg, log), structured, ep
}

func TestGenerateScene(t *testing.T) {
	ctx := context.Background()

	t.Run("approved draft commits everywhere", func(t *testing.T) {
		provider := &scriptProvider{}
		p, structured, ep := newTestPipeline(t, provider)

		result, err := p.GenerateScene(ctx, Request{
			ProjectID: "proj-1", Prompt: "cross the ford", Location: "the ford",
		})
		if err != nil {
			t.Fatalf("generating: %v", err)
		}
		if result.SequenceIndex != 1 {
			t.Fatalf("expected sequence 1, got %d", result.SequenceIndex)
		}
		if result.Report == nil || !result.Report.Approved {
			t.Fatalf("expected approved report: %+v", result.Report)
		}

		scene, err := structured.GetScene(ctx, "proj-1", result.SceneID)
		if err != nil {
			t.Fatalf("reading scene: %v", err)
		}
		if scene.SceneText != result.SceneText || scene.Prompt != "cross the ford" {
			t.Fatalf("unexpected scene: %+v", scene)
		}

		count, err := ep.CountForProject(ctx, "proj-1")
		if err != nil {
			t.Fatalf("counting episodic records: %v", err)
		}
		if count != 1 {
			t.Fatalf("expected 1 episodic record, got %d", count)
		}
	})

	t.Run("second scene cites the first as prerequisite", func(t *testing.T) {
		provider := &scriptProvider{}
		p, structured, _ := newTestPipeline(t, provider)

		if _, err := p.GenerateScene(ctx, Request{ProjectID: "proj-1", Prompt: "one", Location: "the ford"}); err != nil {
			t.Fatalf("generating first: %v", err)
		}
		if _, err := p.GenerateScene(ctx, Request{ProjectID: "proj-1", Prompt: "two", Location: "the ford"}); err != nil {
			t.Fatalf("generating second: %v", err)
		}

		events, err := structured.ListTimeline(ctx, "proj-1")
		if err != nil {
			t.Fatalf("listing timeline: %v", err)
		}
		if len(events) != 2 {
			t.Fatalf("expected 2 events, got %d", len(events))
		}
		if len(events[1].CausalPrerequisites) != 1 || events[1].CausalPrerequisites[0] != events[0].ID {
			t.Fatalf("second event should cite the first: %+v", events[1])
		}
	})

	t.Run("invalid requests fail before any model call", func(t *testing.T) {
		provider := &scriptProvider{planErr: errors.New("must not be dispatched")}
		p, structured, _ := newTestPipeline(t, provider)

		for name, req := range map[string]Request{
			"empty prompt":      {ProjectID: "proj-1", Prompt: "  "},
			"unknown project":   {ProjectID: "ghost", Prompt: "go"},
			"unknown character": {ProjectID: "proj-1", Prompt: "go", CharacterNames: []string{"Nobody"}},
		} {
			_, err := p.GenerateScene(ctx, req)
			failure, ok := AsFailure(err)
			if !ok || failure.Kind != KindInvalidRequest {
				t.Fatalf("%s: expected invalid request, got %v", name, err)
			}
		}

		if err := structured.RetireCharacter(ctx, "proj-1", "char-1"); err != nil {
			t.Fatalf("retiring character: %v", err)
		}
		_, err := p.GenerateScene(ctx, Request{
			ProjectID: "proj-1", Prompt: "go", CharacterNames: []string{"Mira"},
		})
		failure, ok := AsFailure(err)
		if !ok || failure.Kind != KindInvalidRequest {
			t.Fatalf("retired character: expected invalid request, got %v", err)
		}
	})

	t.Run("plan failure is a provider fault", func(t *testing.T) {
		provider := &scriptProvider{planErr: errors.New("connection refused")}
		p, _, _ := newTestPipeline(t, provider)

		_, err := p.GenerateScene(ctx, Request{ProjectID: "proj-1", Prompt: "go", Location: "the ford"})
		failure, ok := AsFailure(err)
		if !ok || failure.Kind != KindProviderUnavailable {
			t.Fatalf("expected provider fault, got %v", err)
		}
	})

	t.Run("rejection retries once with feedback then surfaces", func(t *testing.T) {
		provider := &scriptProvider{reports: []*store.CriticReport{
			rejectingReport("Mira charges in despite her caution."),
		}}
		p, structured, ep := newTestPipeline(t, provider)

		_, err := p.GenerateScene(ctx, Request{ProjectID: "proj-1", Prompt: "go", Location: "the ford"})
		failure, ok := AsFailure(err)
		if !ok || failure.Kind != KindRejected {
			t.Fatalf("expected rejection, got %v", err)
		}
		if failure.Draft == "" || failure.Report == nil {
			t.Fatalf("rejection missing draft or report: %+v", failure)
		}

		if len(provider.executeCalls) != 2 {
			t.Fatalf("expected 2 execution attempts, got %d", len(provider.executeCalls))
		}
		if provider.executeCalls[0].CorrectiveFeedback != "" {
			t.Fatalf("first attempt should have no feedback: %q", provider.executeCalls[0].CorrectiveFeedback)
		}
		if !strings.Contains(provider.executeCalls[1].CorrectiveFeedback, "despite her caution") {
			t.Fatalf("retry missing critique feedback: %q", provider.executeCalls[1].CorrectiveFeedback)
		}

		scenes, err := structured.ListScenes(ctx, "proj-1")
		if err != nil {
			t.Fatalf("listing scenes: %v", err)
		}
		if len(scenes) != 0 {
			t.Fatalf("rejected draft leaked into structured store: %+v", scenes)
		}
		count, err := ep.CountForProject(ctx, "proj-1")
		if err != nil {
			t.Fatalf("counting episodic records: %v", err)
		}
		if count != 0 {
			t.Fatalf("rejected draft leaked into episodic store: %d", count)
		}
	})

	t.Run("rejected then approved commits the fixed draft", func(t *testing.T) {
		provider := &scriptProvider{reports: []*store.CriticReport{
			rejectingReport("too rash"),
			{Metrics: store.CriticMetrics{TraitAdherenceScore: 0.9}},
		}}
		p, _, _ := newTestPipeline(t, provider)

		result, err := p.GenerateScene(ctx, Request{ProjectID: "proj-1", Prompt: "go", Location: "the ford"})
		if err != nil {
			t.Fatalf("generating: %v", err)
		}
		if !strings.HasPrefix(result.SceneText, "Draft 2:") {
			t.Fatalf("expected the retried draft, got %q", result.SceneText)
		}
	})
}

func TestGenerateSceneSerialization(t *testing.T) {
	ctx := context.Background()
	provider := &scriptProvider{}
	p, structured, _ := newTestPipeline(t, provider)

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = p.GenerateScene(ctx, Request{
				ProjectID: "proj-1",
				Prompt:    fmt.Sprintf("scene %d", i),
				Location:  "the ford",
			})
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("writer %d failed: %v", i, err)
		}
	}

	scenes, err := structured.ListScenes(ctx, "proj-1")
	if err != nil {
		t.Fatalf("listing scenes: %v", err)
	}
	if len(scenes) != writers {
		t.Fatalf("expected %d scenes, got %d", writers, len(scenes))
	}
	seen := make(map[int]bool, writers)
	for _, scene := range scenes {
		if seen[scene.SequenceIndex] {
			t.Fatalf("duplicate sequence index %d", scene.SequenceIndex)
		}
		seen[scene.SequenceIndex] = true
	}
	for i := 1; i <= writers; i++ {
		if !seen[i] {
			t.Fatalf("sequence gap at %d", i)
		}
	}
}
