package mcp

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"loreweaver/internal/embedding"
	"loreweaver/internal/episodic"
	"loreweaver/internal/pipeline"
	"loreweaver/internal/store"
	"loreweaver/internal/store/sqlite"
	"loreweaver/internal/updater"
)

type mockGenerator struct {
	result  *pipeline.Result
	err     error
	lastReq pipeline.Request
}

func (m *mockGenerator) GenerateScene(_ context.Context, req pipeline.Request) (*pipeline.Result, error) {
	m.lastReq = req
	return m.result, m.err
}

func newTestServer(t *testing.T, generator SceneGenerator) (*Server, *updater.Updater, *sqlite.Client) {
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

	up := updater.New(structured, ep, embedding.NewHashEmbedder(32), updater.NewProjectLocks(), zap.NewNop())
	return NewServer(generator, up, structured, "test"), up, structured
}

func initializeTestStory(t *testing.T, s *Server) string {
	t.Helper()
	_, output, err := s.handleInitializeStory(context.Background(), nil, InitializeStoryInput{
		Name: "ash and ember",
		Characters: []SeedCharacterInput{
			{Name: "Mira", CorePsychology: "cautious", CurrentState: map[string]any{"health": "unhurt"}},
		},
		WorldRules: []SeedWorldRuleInput{
			{Category: "magic", RuleText: "iron negates sigils", ActiveScope: "global"},
			{Category: "politics", RuleText: "curfew in the capital", ActiveScope: "location:capital"},
		},
	})
	if err != nil {
		t.Fatalf("initializing story: %v", err)
	}
	if output.ProjectID == "" {
		t.Fatal("expected a project id")
	}
	return output.ProjectID
}

func TestHandleGenerateScene(t *testing.T) {
	ctx := context.Background()

	t.Run("success maps the result", func(t *testing.T) {
		generator := &mockGenerator{result: &pipeline.Result{
			SceneID:       "sc-1",
			SceneText:     "The river ran high.",
			SequenceIndex: 1,
			Report:        &store.CriticReport{Approved: true},
			LocationUsed:  "the ford",
		}}
		s, _, _ := newTestServer(t, generator)

		_, output, err := s.handleGenerateScene(ctx, nil, GenerateSceneInput{
			ProjectID: "proj-1", Prompt: "cross the ford", Location: "the ford",
			Characters: []string{"Mira"},
		})
		if err != nil {
			t.Fatalf("handling: %v", err)
		}
		if output.SceneText != "The river ran high." || output.SequenceIndex != 1 {
			t.Fatalf("unexpected output: %+v", output)
		}
		if output.Failure != nil {
			t.Fatalf("unexpected failure: %+v", output.Failure)
		}
		if generator.lastReq.CharacterNames[0] != "Mira" {
			t.Fatalf("request not forwarded: %+v", generator.lastReq)
		}
	})

	t.Run("pipeline failure becomes structured output", func(t *testing.T) {
		report := &store.CriticReport{
			Metrics:       store.CriticMetrics{TraitAdherenceScore: 0.3},
			Justification: "out of character",
		}
		failure := &pipeline.Failure{
			Kind:   pipeline.KindRejected,
			Detail: "draft rejected after 2 attempts",
			Draft:  "a rash charge",
			Report: report,
		}
		s, _, _ := newTestServer(t, &mockGenerator{err: failure})

		_, output, err := s.handleGenerateScene(ctx, nil, GenerateSceneInput{
			ProjectID: "proj-1", Prompt: "go",
		})
		if err != nil {
			t.Fatalf("expected structured failure, got error: %v", err)
		}
		if output.Failure == nil || output.Failure.Kind != string(pipeline.KindRejected) {
			t.Fatalf("unexpected output: %+v", output)
		}
		if output.Failure.Draft != "a rash charge" || output.Failure.Report == nil {
			t.Fatalf("failure missing draft or report: %+v", output.Failure)
		}
	})

	t.Run("unclassified errors propagate", func(t *testing.T) {
		want := errors.New("unexpected")
		s, _, _ := newTestServer(t, &mockGenerator{err: want})
		_, _, err := s.handleGenerateScene(ctx, nil, GenerateSceneInput{ProjectID: "p", Prompt: "go"})
		if !errors.Is(err, want) {
			t.Fatalf("expected raw error, got %v", err)
		}
	})
}

func TestHandleStoryState(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestServer(t, &mockGenerator{})
	projectID := initializeTestStory(t, s)

	_, output, err := s.handleStoryState(ctx, nil, StoryStateInput{ProjectID: projectID, Location: "the mill"})
	if err != nil {
		t.Fatalf("handling: %v", err)
	}
	if output.NextSequenceIndex != 1 {
		t.Fatalf("expected next sequence 1, got %d", output.NextSequenceIndex)
	}
	if len(output.Characters) != 1 || output.Characters[0].Name != "Mira" {
		t.Fatalf("unexpected characters: %+v", output.Characters)
	}
	if len(output.RulesInScope) != 1 || output.RulesInScope[0].RuleText != "iron negates sigils" {
		t.Fatalf("expected only the global rule in scope: %+v", output.RulesInScope)
	}

	t.Run("unknown project fails", func(t *testing.T) {
		if _, _, err := s.handleStoryState(ctx, nil, StoryStateInput{ProjectID: "ghost"}); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestHandleDeactivateRule(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestServer(t, &mockGenerator{})
	projectID := initializeTestStory(t, s)

	_, state, err := s.handleStoryState(ctx, nil, StoryStateInput{ProjectID: projectID})
	if err != nil {
		t.Fatalf("reading story state: %v", err)
	}
	if len(state.RulesInScope) != 1 || state.RulesInScope[0].ID == "" {
		t.Fatalf("expected one rule with an id: %+v", state.RulesInScope)
	}

	_, output, err := s.handleDeactivateRule(ctx, nil, DeactivateRuleInput{
		ProjectID: projectID, RuleID: state.RulesInScope[0].ID,
	})
	if err != nil {
		t.Fatalf("deactivating: %v", err)
	}
	if output.RuleID != state.RulesInScope[0].ID {
		t.Fatalf("unexpected output: %+v", output)
	}

	_, after, err := s.handleStoryState(ctx, nil, StoryStateInput{ProjectID: projectID})
	if err != nil {
		t.Fatalf("reading story state: %v", err)
	}
	if len(after.RulesInScope) != 0 {
		t.Fatalf("deactivated rule still in scope: %+v", after.RulesInScope)
	}

	t.Run("missing rule id rejected", func(t *testing.T) {
		if _, _, err := s.handleDeactivateRule(ctx, nil, DeactivateRuleInput{ProjectID: projectID}); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestHandleFetchAndDeleteScenes(t *testing.T) {
	ctx := context.Background()
	s, up, _ := newTestServer(t, &mockGenerator{})
	projectID := initializeTestStory(t, s)

	var sceneIDs []string
	for _, text := range []string{"one", "two", "three"} {
		result, err := up.Commit(ctx, updater.Draft{
			ProjectID: projectID,
			Prompt:    "next",
			SceneText: text,
			Location:  "the mill",
			Summary:   "scene " + text,
		}, store.CriticReport{Approved: true})
		if err != nil {
			t.Fatalf("committing: %v", err)
		}
		sceneIDs = append(sceneIDs, result.SceneID)
	}

	t.Run("fetch respects the sequence window", func(t *testing.T) {
		_, output, err := s.handleFetchScenes(ctx, nil, FetchScenesInput{
			ProjectID: projectID, FromSequence: 2, ToSequence: 3,
		})
		if err != nil {
			t.Fatalf("fetching: %v", err)
		}
		if len(output.Scenes) != 2 || output.Scenes[0].SceneText != "two" {
			t.Fatalf("unexpected scenes: %+v", output.Scenes)
		}
	})

	t.Run("delete renumbers", func(t *testing.T) {
		_, deleted, err := s.handleDeleteScene(ctx, nil, DeleteSceneInput{
			ProjectID: projectID, SceneID: sceneIDs[0],
		})
		if err != nil {
			t.Fatalf("deleting: %v", err)
		}
		if deleted.RemovedSequenceIndex != 1 {
			t.Fatalf("expected removed index 1, got %d", deleted.RemovedSequenceIndex)
		}

		_, output, err := s.handleFetchScenes(ctx, nil, FetchScenesInput{ProjectID: projectID})
		if err != nil {
			t.Fatalf("fetching: %v", err)
		}
		if len(output.Scenes) != 2 || output.Scenes[0].SequenceIndex != 1 || output.Scenes[0].SceneText != "two" {
			t.Fatalf("renumbering not reflected: %+v", output.Scenes)
		}
	})
}

func TestHandleListProjects(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestServer(t, &mockGenerator{})
	initializeTestStory(t, s)

	_, output, err := s.handleListProjects(ctx, nil, ListProjectsInput{})
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(output.Projects) != 1 || output.Projects[0].Name != "ash and ember" {
		t.Fatalf("unexpected projects: %+v", output.Projects)
	}
}
