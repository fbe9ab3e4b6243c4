package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func synthesizeCmd() *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "synthesize",
		Short: "Run the consolidation pass over recent scenes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(project) == "" {
				return fmt.Errorf("--project is required")
			}
			return runSynthesize(project)
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "Project id")
	return cmd
}

func runSynthesize(project string) error {
	ctx := context.Background()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	if err := a.synth.Run(ctx, project); err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, "Synthesis pass complete.")
	return nil
}
