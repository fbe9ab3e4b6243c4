package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const seedPath = "story.yaml"

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a new loreweaver project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit()
		},
	}
	return cmd
}

func runInit() error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("%s already exists", configPath)
	}
	if _, err := os.Stat(seedPath); err == nil {
		return fmt.Errorf("%s already exists", seedPath)
	}

	configContents := `version: 1

database:
  dsn: sqlite://loreweaver.db

episodic:
  dsn: sqlite://loreweaver_episodic.db

providers:
  gemini:
    api_key_env: GEMINI_API_KEY
    model: gemini-2.5-flash
    embedding_model: gemini-embedding-001
    timeout_seconds: 120

routing:
  plan: gemini
  execute: gemini
  critique: gemini
  synthesize: gemini

context:
  tier1_budget: 1000
  tier2_budget: 2000
  tier3_budget: 2000
  recent_scenes: 3
  episodic_top_k: 3

critic:
  trait_threshold: 0.7

pipeline:
  max_retries: 1
  dispatch_timeout_seconds: 120

synthesis:
  every_scenes: 5
`
	seedContents := `version: 1
name: my story
description: ""

characters:
  - name: Protagonist
    core_psychology: describe the character's immutable psychological core
    current_state:
      health: unhurt
    relationships: {}

world_rules:
  - category: custom
    rule_text: describe a durable rule of this world
    active_scope: global
`
	if err := os.WriteFile(configPath, []byte(configContents), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", configPath, err)
	}
	if err := os.WriteFile(seedPath, []byte(seedContents), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", seedPath, err)
	}

	fmt.Fprintf(os.Stdout, "Wrote %s and %s. Edit %s, then run: loreweaver seed\n", configPath, seedPath, seedPath)
	return nil
}
