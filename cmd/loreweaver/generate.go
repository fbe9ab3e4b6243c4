package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"loreweaver/internal/pipeline"
)

func generateCmd() *cobra.Command {
	var project string
	var prompt string
	var location string
	var characters []string
	var feedback string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate, critique, and commit the next scene",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(project) == "" {
				return fmt.Errorf("--project is required")
			}
			if strings.TrimSpace(prompt) == "" {
				return fmt.Errorf("--prompt is required")
			}
			return runGenerate(project, prompt, location, characters, feedback)
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "Project id")
	cmd.Flags().StringVar(&prompt, "prompt", "", "What should happen in the scene")
	cmd.Flags().StringVar(&location, "location", "", "Where the scene takes place")
	cmd.Flags().StringArrayVar(&characters, "character", nil, "Active character name (repeatable; empty means the whole cast)")
	cmd.Flags().StringVar(&feedback, "feedback", "", "Corrective feedback from a previously rejected draft")
	return cmd
}

func runGenerate(project, prompt, location string, characters []string, feedback string) error {
	ctx := context.Background()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	result, err := a.pipeline.GenerateScene(ctx, pipeline.Request{
		ProjectID:          project,
		Prompt:             prompt,
		Location:           location,
		CharacterNames:     characters,
		CorrectiveFeedback: feedback,
	})
	if err != nil {
		if failure, ok := pipeline.AsFailure(err); ok {
			printFailure(failure)
		}
		return err
	}

	fmt.Fprintf(os.Stdout, "Scene %d committed (%s)\n\n", result.SequenceIndex, result.SceneID)
	fmt.Fprintln(os.Stdout, result.SceneText)
	fmt.Fprintf(os.Stdout, "\nTrait adherence: %.2f  Temporal flags: %d\n",
		result.Report.Metrics.TraitAdherenceScore,
		result.Report.Metrics.TemporalContinuityFlags)
	for _, drift := range result.Report.Metrics.StateDriftDetected {
		fmt.Fprintf(os.Stdout, "Drift recorded: %s\n", drift)
	}
	return nil
}

func printFailure(failure *pipeline.Failure) {
	fmt.Fprintf(os.Stderr, "Generation failed (%s): %s\n", failure.Kind, failure.Detail)
	if failure.Report != nil {
		fmt.Fprintf(os.Stderr, "Critic: %s\n", failure.Report.Justification)
	}
	if failure.Draft != "" {
		fmt.Fprintf(os.Stderr, "\nRejected draft:\n%s\n", failure.Draft)
	}
}
