package config

import (
	"os"
	"path/filepath"
	"testing"
)

const validSeed = `version: 1
name: ash-and-ember
description: A road story across a dying empire.
characters:
  - name: Kaelen
    core_psychology: cowardly but fiercely loyal to his sister
    current_state:
      health: unhurt
      mood: anxious
    relationships:
      sibling: Mira
  - name: Mira
    core_psychology: reckless idealist
world_rules:
  - category: magic
    rule_text: Fire magic consumes the caster's memories.
    active_scope: global
  - category: politics
    rule_text: The city guard answers only to the Merchant Council.
    active_scope: "location:Vethmar"
`

func TestLoadStorySeed(t *testing.T) {
	t.Run("valid seed loads", func(t *testing.T) {
		seed, err := LoadStorySeed(writeTempSeed(t, validSeed))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if seed.Name != "ash-and-ember" {
			t.Fatalf("expected story name, got %q", seed.Name)
		}
		if len(seed.Characters) != 2 {
			t.Fatalf("expected 2 characters, got %d", len(seed.Characters))
		}
		if len(seed.WorldRules) != 2 {
			t.Fatalf("expected 2 world rules, got %d", len(seed.WorldRules))
		}
	})

	t.Run("missing story name", func(t *testing.T) {
		path := writeTempSeed(t, "version: 1\ncharacters:\n  - name: A\n    core_psychology: stoic\n")
		if _, err := LoadStorySeed(path); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("no characters", func(t *testing.T) {
		path := writeTempSeed(t, "version: 1\nname: x\n")
		if _, err := LoadStorySeed(path); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("character missing psychology", func(t *testing.T) {
		path := writeTempSeed(t, "version: 1\nname: x\ncharacters:\n  - name: A\n")
		if _, err := LoadStorySeed(path); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("duplicate character names", func(t *testing.T) {
		path := writeTempSeed(t, "version: 1\nname: x\ncharacters:\n  - name: A\n    core_psychology: p\n  - name: a\n    core_psychology: p\n")
		if _, err := LoadStorySeed(path); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("relationship references unknown character", func(t *testing.T) {
		path := writeTempSeed(t, "version: 1\nname: x\ncharacters:\n  - name: A\n    core_psychology: p\n    relationships:\n      rival: B\n")
		if _, err := LoadStorySeed(path); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("unknown rule category", func(t *testing.T) {
		path := writeTempSeed(t, "version: 1\nname: x\ncharacters:\n  - name: A\n    core_psychology: p\nworld_rules:\n  - category: economy\n    rule_text: r\n")
		if _, err := LoadStorySeed(path); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("scope variants", func(t *testing.T) {
		cases := map[string]bool{
			"":              true,
			"global":        true,
			"location:Keep": true,
			"scenes:3-10":   true,
			"location:":     false,
			"scenes:10-3":   false,
			"scenes:abc":    false,
			"region:North":  false,
		}
		for scope, ok := range cases {
			err := validateScope(scope)
			if ok && err != nil {
				t.Fatalf("scope %q: expected valid, got %v", scope, err)
			}
			if !ok && err == nil {
				t.Fatalf("scope %q: expected error", scope)
			}
		}
	})
}

func writeTempSeed(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "story.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing temp seed: %v", err)
	}
	return path
}
