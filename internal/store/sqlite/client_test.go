package sqlite

import (
	"context"
	"errors"
	"testing"

	"loreweaver/internal/store"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()

	client, err := New(ctx, "sqlite://:memory:")
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	t.Cleanup(func() { client.Close(ctx) })

	if err := client.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensuring schema: %v", err)
	}
	return client
}

func seedProject(t *testing.T, client *Client) string {
	t.Helper()
	ctx := context.Background()

	project := store.Project{ID: "proj-1", Name: "ash-and-ember"}
	if err := client.CreateProject(ctx, project); err != nil {
		t.Fatalf("creating project: %v", err)
	}
	return project.ID
}

func TestProjects(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	t.Run("create and get", func(t *testing.T) {
		projectID := seedProject(t, client)
		got, err := client.GetProject(ctx, projectID)
		if err != nil {
			t.Fatalf("getting project: %v", err)
		}
		if got.Name != "ash-and-ember" {
			t.Fatalf("unexpected project: %+v", got)
		}
	})

	t.Run("get missing returns not found", func(t *testing.T) {
		if _, err := client.GetProject(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := client.DeleteProject(ctx, "proj-1"); err != nil {
			t.Fatalf("deleting project: %v", err)
		}
		if err := client.DeleteProject(ctx, "proj-1"); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestCharacters(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)
	projectID := seedProject(t, client)

	character := store.Character{
		ID:             "char-1",
		ProjectID:      projectID,
		Name:           "Kaelen",
		CorePsychology: "cowardly but loyal",
		CurrentState:   map[string]any{"health": "unhurt"},
		Relationships:  map[string]string{"sibling": "char-2"},
	}
	if err := client.CreateCharacter(ctx, character); err != nil {
		t.Fatalf("creating character: %v", err)
	}

	t.Run("lookup by name is case-insensitive", func(t *testing.T) {
		got, err := client.GetCharacterByName(ctx, projectID, "kaelen")
		if err != nil {
			t.Fatalf("getting character: %v", err)
		}
		if got.ID != "char-1" || got.CurrentState["health"] != "unhurt" {
			t.Fatalf("unexpected character: %+v", got)
		}
	})

	t.Run("update state", func(t *testing.T) {
		err := client.UpdateCharacterState(ctx, projectID, "char-1", map[string]any{"health": "wounded"})
		if err != nil {
			t.Fatalf("updating state: %v", err)
		}
		got, err := client.GetCharacter(ctx, projectID, "char-1")
		if err != nil {
			t.Fatalf("getting character: %v", err)
		}
		if got.CurrentState["health"] != "wounded" {
			t.Fatalf("unexpected state: %v", got.CurrentState)
		}
	})

	t.Run("retire hides from default listing", func(t *testing.T) {
		if err := client.RetireCharacter(ctx, projectID, "char-1"); err != nil {
			t.Fatalf("retiring character: %v", err)
		}
		active, err := client.ListCharacters(ctx, projectID, false)
		if err != nil {
			t.Fatalf("listing characters: %v", err)
		}
		if len(active) != 0 {
			t.Fatalf("expected no active characters, got %d", len(active))
		}
		all, err := client.ListCharacters(ctx, projectID, true)
		if err != nil {
			t.Fatalf("listing characters: %v", err)
		}
		if len(all) != 1 || !all[0].Retired {
			t.Fatalf("expected one retired character, got %+v", all)
		}
	})
}

func TestWorldRules(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)
	projectID := seedProject(t, client)

	t.Run("invalid scope rejected", func(t *testing.T) {
		rule := store.WorldRule{ID: "rule-x", ProjectID: projectID, Category: "magic", RuleText: "r", ActiveScope: "region:North"}
		if err := client.CreateWorldRule(ctx, rule); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("deactivation filters active listing", func(t *testing.T) {
		rule := store.WorldRule{ID: "rule-1", ProjectID: projectID, Category: "magic", RuleText: "fire costs memories", ActiveScope: "global"}
		if err := client.CreateWorldRule(ctx, rule); err != nil {
			t.Fatalf("creating rule: %v", err)
		}
		if err := client.DeactivateWorldRule(ctx, projectID, "rule-1"); err != nil {
			t.Fatalf("deactivating rule: %v", err)
		}
		active, err := client.ListWorldRules(ctx, projectID, true)
		if err != nil {
			t.Fatalf("listing rules: %v", err)
		}
		if len(active) != 0 {
			t.Fatalf("expected no active rules, got %d", len(active))
		}
		all, err := client.ListWorldRules(ctx, projectID, false)
		if err != nil {
			t.Fatalf("listing rules: %v", err)
		}
		if len(all) != 1 || all[0].Active {
			t.Fatalf("expected one inactive rule, got %+v", all)
		}
	})
}

func commitScene(t *testing.T, client *Client, projectID, sceneID, summary string, prereqs []string, patches []store.StatePatch) int {
	t.Helper()
	seq, err := client.CommitScene(context.Background(), store.CommitInput{
		ProjectID:           projectID,
		SceneID:             sceneID,
		Location:            "Vethmar",
		ParticipantIDs:      []string{"char-1"},
		Summary:             summary,
		CausalPrerequisites: prereqs,
		Prompt:              "prompt",
		SceneText:           "text of " + sceneID,
		Report:              store.CriticReport{Approved: true, Metrics: store.CriticMetrics{TraitAdherenceScore: 0.9}},
		StatePatches:        patches,
	})
	if err != nil {
		t.Fatalf("committing %s: %v", sceneID, err)
	}
	return seq
}

func TestCommitScene(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)
	projectID := seedProject(t, client)

	character := store.Character{ID: "char-1", ProjectID: projectID, Name: "Kaelen", CorePsychology: "cowardly", CurrentState: map[string]any{"health": "unhurt"}}
	if err := client.CreateCharacter(ctx, character); err != nil {
		t.Fatalf("creating character: %v", err)
	}

	t.Run("sequence indexes are gapless from 1", func(t *testing.T) {
		for i, sceneID := range []string{"sc-1", "sc-2", "sc-3"} {
			seq := commitScene(t, client, projectID, sceneID, "summary", nil, nil)
			if seq != i+1 {
				t.Fatalf("expected sequence %d, got %d", i+1, seq)
			}
		}
	})

	t.Run("critic report round-trips", func(t *testing.T) {
		scene, err := client.GetScene(ctx, projectID, "sc-1")
		if err != nil {
			t.Fatalf("getting scene: %v", err)
		}
		if scene.CriticReport == nil || !scene.CriticReport.Approved {
			t.Fatalf("unexpected report: %+v", scene.CriticReport)
		}
	})

	t.Run("state patch applied within commit", func(t *testing.T) {
		commitScene(t, client, projectID, "sc-4", "wounded", nil, []store.StatePatch{
			{CharacterID: "char-1", Set: map[string]any{"health": "wounded"}},
		})
		got, err := client.GetCharacter(ctx, projectID, "char-1")
		if err != nil {
			t.Fatalf("getting character: %v", err)
		}
		if got.CurrentState["health"] != "wounded" {
			t.Fatalf("unexpected state: %v", got.CurrentState)
		}
	})

	t.Run("causal prerequisites must exist", func(t *testing.T) {
		before, err := client.ListTimeline(ctx, projectID)
		if err != nil {
			t.Fatalf("listing timeline: %v", err)
		}

		_, err = client.CommitScene(ctx, store.CommitInput{
			ProjectID:           projectID,
			SceneID:             "sc-bad",
			Summary:             "summary",
			SceneText:           "text",
			CausalPrerequisites: []string{"sc-nope"},
		})
		if !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}

		after, err := client.ListTimeline(ctx, projectID)
		if err != nil {
			t.Fatalf("listing timeline: %v", err)
		}
		if len(after) != len(before) {
			t.Fatalf("failed commit mutated the timeline: %d -> %d", len(before), len(after))
		}
	})

	t.Run("recent scenes are chronological", func(t *testing.T) {
		recent, err := client.RecentScenes(ctx, projectID, 2)
		if err != nil {
			t.Fatalf("recent scenes: %v", err)
		}
		if len(recent) != 2 || recent[0].SequenceIndex != 3 || recent[1].SequenceIndex != 4 {
			t.Fatalf("unexpected recent scenes: %+v", recent)
		}
	})
}

func TestDeleteScene(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)
	projectID := seedProject(t, client)

	commitScene(t, client, projectID, "sc-1", "first", nil, nil)
	commitScene(t, client, projectID, "sc-2", "second", []string{"sc-1"}, nil)
	commitScene(t, client, projectID, "sc-3", "third", []string{"sc-2"}, nil)

	removed, err := client.DeleteScene(ctx, projectID, "sc-2")
	if err != nil {
		t.Fatalf("deleting scene: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected removed index 2, got %d", removed)
	}

	t.Run("remaining events renumbered gapless", func(t *testing.T) {
		events, err := client.ListTimeline(ctx, projectID)
		if err != nil {
			t.Fatalf("listing timeline: %v", err)
		}
		if len(events) != 2 {
			t.Fatalf("expected 2 events, got %d", len(events))
		}
		for i, event := range events {
			if event.SequenceIndex != i+1 {
				t.Fatalf("expected sequence %d, got %d", i+1, event.SequenceIndex)
			}
		}
	})

	t.Run("dangling prerequisites stripped", func(t *testing.T) {
		events, err := client.ListTimeline(ctx, projectID)
		if err != nil {
			t.Fatalf("listing timeline: %v", err)
		}
		for _, event := range events {
			for _, prereq := range event.CausalPrerequisites {
				if prereq == "sc-2" {
					t.Fatalf("event %s still references deleted scene", event.ID)
				}
			}
		}
	})

	t.Run("scenes renumbered alongside events", func(t *testing.T) {
		scenes, err := client.ListScenes(ctx, projectID)
		if err != nil {
			t.Fatalf("listing scenes: %v", err)
		}
		if len(scenes) != 2 || scenes[0].ID != "sc-1" || scenes[1].ID != "sc-3" {
			t.Fatalf("unexpected scenes: %+v", scenes)
		}
		if scenes[1].SequenceIndex != 2 {
			t.Fatalf("expected renumbered index 2, got %d", scenes[1].SequenceIndex)
		}
	})

	t.Run("missing scene returns not found", func(t *testing.T) {
		if _, err := client.DeleteScene(ctx, projectID, "sc-2"); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}
