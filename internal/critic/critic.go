// Package critic turns a model critique into an engine verdict. The model
// supplies metrics and a justification; the approval decision itself is
// recomputed here so a lenient model cannot wave a bad draft through.
package critic

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"loreweaver/internal/llm"
	"loreweaver/internal/store"
)

// Reviewer is the critique slice of llm.Provider.
type Reviewer interface {
	Critique(ctx context.Context, req llm.CritiqueRequest) (*store.CriticReport, error)
}

type Critic struct {
	reviewer       Reviewer
	traitThreshold float64
}

func New(reviewer Reviewer, traitThreshold float64) *Critic {
	return &Critic{reviewer: reviewer, traitThreshold: traitThreshold}
}

type Draft struct {
	SceneText  string
	Characters []store.Character
	Timeline   []store.TimelineEvent
}

// Review dispatches the critique and applies the approval rule: trait
// adherence at or above threshold and zero temporal continuity flags.
// Detected state drift is recorded but never blocks approval.
func (c *Critic) Review(ctx context.Context, draft Draft) (*store.CriticReport, error) {
	report, err := c.reviewer.Critique(ctx, llm.CritiqueRequest{
		SceneText:      draft.SceneText,
		StateSnapshot:  renderStateSnapshot(draft.Characters),
		TimelineDigest: renderTimelineDigest(draft.Timeline),
	})
	if err != nil {
		return nil, fmt.Errorf("reviewing draft: %w", err)
	}

	report.Approved = report.Metrics.TraitAdherenceScore >= c.traitThreshold &&
		report.Metrics.TemporalContinuityFlags == 0
	return report, nil
}

func renderStateSnapshot(characters []store.Character) string {
	var b strings.Builder
	for _, c := range characters {
		b.WriteString(c.Name + "\n")
		b.WriteString("  core psychology: " + c.CorePsychology + "\n")
		for _, key := range sortedKeys(c.CurrentState) {
			b.WriteString(fmt.Sprintf("  %s: %v\n", key, c.CurrentState[key]))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderTimelineDigest(events []store.TimelineEvent) string {
	var b strings.Builder
	for _, e := range events {
		b.WriteString(fmt.Sprintf("%d. [%s] %s\n", e.SequenceIndex, e.Location, e.Summary))
	}
	return strings.TrimRight(b.String(), "\n")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
