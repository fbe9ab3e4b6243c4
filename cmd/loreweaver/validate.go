package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"loreweaver/internal/config"
	"loreweaver/internal/validate"
)

func validateCmd() *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Audit a project's stores against the engine invariants",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(project) == "" {
				return fmt.Errorf("--project is required")
			}
			return runValidate(project)
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "Project id")
	return cmd
}

func runValidate(project string) error {
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

	report, err := validate.Run(ctx, structured, ep, project)
	if err != nil {
		return err
	}

	var errorIssues []validate.Issue
	var warnIssues []validate.Issue
	for _, issue := range report.Issues {
		switch issue.Severity {
		case validate.SeverityError:
			errorIssues = append(errorIssues, issue)
		case validate.SeverityWarn:
			warnIssues = append(warnIssues, issue)
		}
	}

	if len(errorIssues) == 0 && len(warnIssues) == 0 {
		fmt.Fprintln(os.Stdout, "No issues found.")
		return nil
	}

	if len(errorIssues) > 0 {
		fmt.Fprintf(os.Stdout, "Errors (%d):\n", len(errorIssues))
		printIssues(os.Stdout, errorIssues)
	}
	if len(warnIssues) > 0 {
		if len(errorIssues) > 0 {
			fmt.Fprintln(os.Stdout, "")
		}
		fmt.Fprintf(os.Stdout, "Warnings (%d):\n", len(warnIssues))
		printIssues(os.Stdout, warnIssues)
	}

	if len(errorIssues) > 0 {
		return fmt.Errorf("validation found errors")
	}
	return nil
}

func printIssues(out *os.File, issues []validate.Issue) {
	for _, issue := range issues {
		location := fmt.Sprintf("sequence %d", issue.Sequence)
		if issue.SceneID != "" {
			location = fmt.Sprintf("%s (%s)", location, issue.SceneID)
		}
		fmt.Fprintf(out, "  - %s: %s (%s)\n", location, issue.Message, issue.Code)
	}
}
