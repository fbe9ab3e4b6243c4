package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"loreweaver/internal/config"
)

func scenesCmd() *cobra.Command {
	var project string
	var from int
	var to int
	var full bool
	cmd := &cobra.Command{
		Use:   "scenes",
		Short: "List committed scenes in chronological order",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(project) == "" {
				return fmt.Errorf("--project is required")
			}
			return runScenes(project, from, to, full)
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "Project id")
	cmd.Flags().IntVar(&from, "from", 0, "First sequence index to include")
	cmd.Flags().IntVar(&to, "to", 0, "Last sequence index to include")
	cmd.Flags().BoolVar(&full, "full", false, "Print full scene text")
	return cmd
}

func runScenes(project string, from, to int, full bool) error {
	ctx := context.Background()

	cfg, err := config.LoadProjectConfig(configPath)
	if err != nil {
		return err
	}
	structured, ep, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer structured.Close(ctx)
	defer ep.Close(ctx)

	scenes, err := structured.ListScenes(ctx, project)
	if err != nil {
		return err
	}

	printed := 0
	for _, scene := range scenes {
		if from > 0 && scene.SequenceIndex < from {
			continue
		}
		if to > 0 && scene.SequenceIndex > to {
			continue
		}
		printed++
		if full {
			fmt.Fprintf(os.Stdout, "=== Scene %d (%s) at %s ===\n%s\n\n", scene.SequenceIndex, scene.ID, scene.Location, scene.SceneText)
			continue
		}
		line := scene.SceneText
		if idx := strings.IndexByte(line, '\n'); idx >= 0 {
			line = line[:idx]
		}
		if len(line) > 80 {
			line = line[:77] + "..."
		}
		fmt.Fprintf(os.Stdout, "%3d  %s  %s\n", scene.SequenceIndex, scene.ID, line)
	}
	if printed == 0 {
		fmt.Fprintln(os.Stdout, "No scenes found.")
	}
	return nil
}
