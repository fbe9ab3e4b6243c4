package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// StorySeed is the initialization file for a new story: the cast and the
// durable world rules that exist before the first scene is generated.
type StorySeed struct {
	Version     int             `yaml:"version"`
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	Characters  []SeedCharacter `yaml:"characters"`
	WorldRules  []SeedWorldRule `yaml:"world_rules"`
}

type SeedCharacter struct {
	Name           string            `yaml:"name"`
	CorePsychology string            `yaml:"core_psychology"`
	CurrentState   map[string]any    `yaml:"current_state"`
	Relationships  map[string]string `yaml:"relationships"`
}

type SeedWorldRule struct {
	Category    string `yaml:"category"`
	RuleText    string `yaml:"rule_text"`
	ActiveScope string `yaml:"active_scope"`
}

var ruleCategories = map[string]struct{}{
	"magic":    {},
	"physics":  {},
	"politics": {},
	"custom":   {},
}

func LoadStorySeed(path string) (*StorySeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading story seed: %w", err)
	}

	var seed StorySeed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("loading story seed: %w", err)
	}

	if err := validateStorySeed(&seed); err != nil {
		return nil, fmt.Errorf("loading story seed: %w", err)
	}

	return &seed, nil
}

// Validate checks a seed built in memory, for callers that do not go
// through LoadStorySeed.
func (s *StorySeed) Validate() error {
	return validateStorySeed(s)
}

func validateStorySeed(seed *StorySeed) error {
	if seed.Version != 1 {
		return fmt.Errorf("unsupported version: %d", seed.Version)
	}
	if strings.TrimSpace(seed.Name) == "" {
		return fmt.Errorf("story name is required")
	}
	if len(seed.Characters) == 0 {
		return fmt.Errorf("at least one character is required")
	}

	seen := make(map[string]struct{})
	for i, character := range seed.Characters {
		if strings.TrimSpace(character.Name) == "" {
			return fmt.Errorf("character %d name is required", i)
		}
		if strings.TrimSpace(character.CorePsychology) == "" {
			return fmt.Errorf("character %s core_psychology is required", character.Name)
		}
		key := strings.ToLower(character.Name)
		if _, exists := seen[key]; exists {
			return fmt.Errorf("duplicate character name: %s", character.Name)
		}
		seen[key] = struct{}{}
	}

	for _, character := range seed.Characters {
		for _, target := range character.Relationships {
			if _, ok := seen[strings.ToLower(target)]; !ok {
				return fmt.Errorf("character %s relationship references unknown character: %s", character.Name, target)
			}
		}
	}

	for i, rule := range seed.WorldRules {
		if strings.TrimSpace(rule.RuleText) == "" {
			return fmt.Errorf("world rule %d rule_text is required", i)
		}
		if _, ok := ruleCategories[strings.ToLower(rule.Category)]; !ok {
			return fmt.Errorf("world rule %d has unknown category: %s", i, rule.Category)
		}
		if err := validateScope(rule.ActiveScope); err != nil {
			return fmt.Errorf("world rule %d: %w", i, err)
		}
	}

	return nil
}

// validateScope accepts "global", "location:<name>", or "scenes:<from>-<to>".
func validateScope(scope string) error {
	scope = strings.TrimSpace(scope)
	if scope == "" || scope == "global" {
		return nil
	}
	if name, ok := strings.CutPrefix(scope, "location:"); ok {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("location scope requires a name")
		}
		return nil
	}
	if window, ok := strings.CutPrefix(scope, "scenes:"); ok {
		var from, to int
		if _, err := fmt.Sscanf(window, "%d-%d", &from, &to); err != nil {
			return fmt.Errorf("invalid scene window %q", window)
		}
		if from < 1 || to < from {
			return fmt.Errorf("invalid scene window %q", window)
		}
		return nil
	}
	return fmt.Errorf("unknown active_scope: %s", scope)
}
