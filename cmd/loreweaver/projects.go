package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"loreweaver/internal/config"
)

func projectsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List story projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProjects()
		},
	}
}

func runProjects() error {
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

	projects, err := structured.ListProjects(ctx)
	if err != nil {
		return err
	}
	if len(projects) == 0 {
		fmt.Fprintln(os.Stdout, "No projects found.")
		return nil
	}

	for _, project := range projects {
		scenes, err := structured.MaxSequenceIndex(ctx, project.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%s  %s  (%d scenes)\n", project.ID, project.Name, scenes)
	}
	return nil
}
