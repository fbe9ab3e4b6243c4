package updater

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"loreweaver/internal/embedding"
	"loreweaver/internal/episodic"
	"loreweaver/internal/store"
	"loreweaver/internal/store/sqlite"
)

func newTestUpdater(t *testing.T) (*Updater, *sqlite.Client, *episodic.SQLiteStore) {
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
		CorePsychology: "cautious",
		CurrentState:   map[string]any{"health": "unhurt"},
	})
	if err != nil {
		t.Fatalf("creating character: %v", err)
	}

	u := New(structured, ep, embedding.NewHashEmbedder(32), NewProjectLocks(), zap.NewNop())
	return u, structured, ep
}

func testDraft() Draft {
	return Draft{
		ProjectID:        "proj-1",
		Prompt:           "Mira crosses the ford",
		SceneText:        "The water ran high and cold.",
		Location:         "the ford",
		Summary:          "Mira crosses the ford at dusk",
		EmotionalValence: "tense",
		ParticipantIDs:   []string{"char-1"},
	}
}

func TestCommit(t *testing.T) {
	ctx := context.Background()

	t.Run("writes both stores at the same index", func(t *testing.T) {
		u, structured, ep := newTestUpdater(t)

		result, err := u.Commit(ctx, testDraft(), store.CriticReport{Approved: true})
		if err != nil {
			t.Fatalf("committing: %v", err)
		}
		if result.SequenceIndex != 1 {
			t.Fatalf("expected sequence 1, got %d", result.SequenceIndex)
		}

		scene, err := structured.GetScene(ctx, "proj-1", result.SceneID)
		if err != nil {
			t.Fatalf("reading scene: %v", err)
		}
		if scene.SequenceIndex != 1 || scene.SceneText != "The water ran high and cold." {
			t.Fatalf("unexpected scene: %+v", scene)
		}

		records, err := ep.ListForProject(ctx, "proj-1")
		if err != nil {
			t.Fatalf("listing episodic records: %v", err)
		}
		if len(records) != 1 {
			t.Fatalf("expected 1 episodic record, got %d", len(records))
		}
		if records[0].SceneID != result.SceneID || records[0].SequenceIndex != 1 {
			t.Fatalf("episodic record out of step: %+v", records[0])
		}
		if records[0].EmotionalValence != "tense" {
			t.Fatalf("valence not carried: %+v", records[0])
		}
	})

	t.Run("applies drift to the named participant", func(t *testing.T) {
		u, structured, _ := newTestUpdater(t)

		report := store.CriticReport{
			Approved: true,
			Metrics: store.CriticMetrics{
				TraitAdherenceScore: 0.9,
				StateDriftDetected:  []string{"Mira's cloak is soaked through"},
			},
		}
		if _, err := u.Commit(ctx, testDraft(), report); err != nil {
			t.Fatalf("committing: %v", err)
		}

		character, err := structured.GetCharacter(ctx, "proj-1", "char-1")
		if err != nil {
			t.Fatalf("reading character: %v", err)
		}
		notes, ok := character.CurrentState[driftKey].([]any)
		if !ok || len(notes) != 1 {
			t.Fatalf("drift not recorded: %+v", character.CurrentState)
		}
		if notes[0] != "Mira's cloak is soaked through" {
			t.Fatalf("unexpected drift note: %v", notes[0])
		}
		if character.CurrentState["health"] != "unhurt" {
			t.Fatalf("unrelated state disturbed: %+v", character.CurrentState)
		}
	})

	t.Run("drift naming nobody is skipped", func(t *testing.T) {
		u, structured, _ := newTestUpdater(t)

		report := store.CriticReport{
			Approved: true,
			Metrics:  store.CriticMetrics{StateDriftDetected: []string{"the bridge is out"}},
		}
		if _, err := u.Commit(ctx, testDraft(), report); err != nil {
			t.Fatalf("committing: %v", err)
		}

		character, err := structured.GetCharacter(ctx, "proj-1", "char-1")
		if err != nil {
			t.Fatalf("reading character: %v", err)
		}
		if _, ok := character.CurrentState[driftKey]; ok {
			t.Fatalf("unmatched drift applied anyway: %+v", character.CurrentState)
		}
	})

	t.Run("promotes detected world rules", func(t *testing.T) {
		u, structured, _ := newTestUpdater(t)

		report := store.CriticReport{
			Approved: true,
			NewWorldRules: []store.DetectedRule{
				{Category: "Physics", RuleText: "iron sinks in ford water", ActiveScope: "location:the ford"},
				{RuleText: "unscoped rules default to global"},
				{Category: "magic", RuleText: "bad scope is dropped", ActiveScope: "sometimes"},
				{Category: "magic", ActiveScope: "global"},
			},
		}
		if _, err := u.Commit(ctx, testDraft(), report); err != nil {
			t.Fatalf("committing: %v", err)
		}

		rules, err := structured.ListWorldRules(ctx, "proj-1", true)
		if err != nil {
			t.Fatalf("listing rules: %v", err)
		}
		if len(rules) != 2 {
			t.Fatalf("expected 2 promoted rules, got %+v", rules)
		}
		byText := make(map[string]store.WorldRule, len(rules))
		for _, rule := range rules {
			byText[rule.RuleText] = rule
		}
		scoped, ok := byText["iron sinks in ford water"]
		if !ok || scoped.Category != "physics" || scoped.ActiveScope != "location:the ford" {
			t.Fatalf("scoped rule not promoted: %+v", rules)
		}
		global, ok := byText["unscoped rules default to global"]
		if !ok || global.Category != "custom" || global.ActiveScope != "global" {
			t.Fatalf("defaults not applied: %+v", rules)
		}
	})

	t.Run("structured failure compensates episodic write", func(t *testing.T) {
		u, _, ep := newTestUpdater(t)

		draft := testDraft()
		draft.CausalPrerequisites = []string{"no-such-event"}
		_, err := u.Commit(ctx, draft, store.CriticReport{Approved: true})
		if !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}

		count, err := ep.CountForProject(ctx, "proj-1")
		if err != nil {
			t.Fatalf("counting episodic records: %v", err)
		}
		if count != 0 {
			t.Fatalf("episodic record leaked after failed commit: %d", count)
		}
	})
}

func TestDeleteScene(t *testing.T) {
	ctx := context.Background()
	u, structured, ep := newTestUpdater(t)

	var sceneIDs []string
	for range 3 {
		result, err := u.Commit(ctx, testDraft(), store.CriticReport{Approved: true})
		if err != nil {
			t.Fatalf("committing: %v", err)
		}
		sceneIDs = append(sceneIDs, result.SceneID)
	}

	seq, err := u.DeleteScene(ctx, "proj-1", sceneIDs[1])
	if err != nil {
		t.Fatalf("deleting: %v", err)
	}
	if seq != 2 {
		t.Fatalf("expected removed sequence 2, got %d", seq)
	}

	scenes, err := structured.ListScenes(ctx, "proj-1")
	if err != nil {
		t.Fatalf("listing scenes: %v", err)
	}
	if len(scenes) != 2 || scenes[0].SequenceIndex != 1 || scenes[1].SequenceIndex != 2 {
		t.Fatalf("structured renumbering broken: %+v", scenes)
	}

	records, err := ep.ListForProject(ctx, "proj-1")
	if err != nil {
		t.Fatalf("listing episodic records: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 episodic records, got %d", len(records))
	}
	for i, record := range records {
		if record.SequenceIndex != i+1 {
			t.Fatalf("episodic renumbering broken: %+v", records)
		}
		if record.SceneID != scenes[i].ID {
			t.Fatalf("episodic record %d out of step with scene: %+v", i, record)
		}
	}
}
