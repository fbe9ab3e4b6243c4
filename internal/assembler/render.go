package assembler

import (
	"fmt"
	"sort"
	"strings"

	"loreweaver/internal/episodic"
	"loreweaver/internal/store"
)

func renderTier1(characters []store.Character, rules []store.WorldRule) string {
	var b strings.Builder
	b.WriteString("## Characters\n")
	for _, c := range characters {
		b.WriteString("### " + c.Name + "\n")
		b.WriteString("Core psychology: " + c.CorePsychology + "\n")
		if len(c.CurrentState) > 0 {
			b.WriteString("Current state:\n")
			for _, key := range sortedKeys(c.CurrentState) {
				b.WriteString(fmt.Sprintf("  %s: %v\n", key, c.CurrentState[key]))
			}
		}
		if len(c.Relationships) > 0 {
			b.WriteString("Relationships:\n")
			names := make([]string, 0, len(c.Relationships))
			for name := range c.Relationships {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				b.WriteString("  " + name + ": " + c.Relationships[name] + "\n")
			}
		}
	}

	if len(rules) > 0 {
		b.WriteString("\n## World Rules\n")
		for _, rule := range rules {
			b.WriteString("- [" + rule.Category + "] " + rule.RuleText + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderTier2 keeps the most recent scenes that fit the budget and renders
// them in chronological order. The newest scene is always kept.
func renderTier2(recent []store.Scene, budget int) (string, []int, []int) {
	if len(recent) == 0 {
		return "", nil, nil
	}

	kept := make([]store.Scene, 0, len(recent))
	var dropped []int
	used := 0
	for i := len(recent) - 1; i >= 0; i-- {
		scene := recent[i]
		cost := estimateTokens(scene.SceneText)
		if len(kept) > 0 && used+cost > budget {
			dropped = append(dropped, scene.SequenceIndex)
			continue
		}
		kept = append(kept, scene)
		used += cost
	}

	sort.Slice(kept, func(i, j int) bool {
		return kept[i].SequenceIndex < kept[j].SequenceIndex
	})
	sort.Ints(dropped)

	var b strings.Builder
	b.WriteString("## Recent Scenes\n")
	included := make([]int, 0, len(kept))
	for _, scene := range kept {
		b.WriteString(fmt.Sprintf("### Scene %d\n%s\n", scene.SequenceIndex, scene.SceneText))
		included = append(included, scene.SequenceIndex)
	}
	return strings.TrimRight(b.String(), "\n"), included, dropped
}

// renderTier3 keeps matches from the highest similarity down until the
// budget is spent.
func renderTier3(matches []episodic.Match, budget int) (string, []int, []int) {
	if len(matches) == 0 {
		return "", nil, nil
	}

	var b strings.Builder
	b.WriteString("## Relevant Past Events\n")
	var included, dropped []int
	used := 0
	for _, m := range matches {
		line := fmt.Sprintf("- [scene %d] %s", m.SequenceIndex, m.Summary)
		if m.EmotionalValence != "" {
			line += " (" + m.EmotionalValence + ")"
		}
		cost := estimateTokens(line)
		if len(included) > 0 && used+cost > budget {
			dropped = append(dropped, m.SequenceIndex)
			continue
		}
		b.WriteString(line + "\n")
		included = append(included, m.SequenceIndex)
		used += cost
	}
	return strings.TrimRight(b.String(), "\n"), included, dropped
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
