package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"go.uber.org/zap"

	"loreweaver/internal/config"
	"loreweaver/internal/embedding"
	"loreweaver/internal/updater"
)

func deleteSceneCmd() *cobra.Command {
	var project string
	var scene string
	cmd := &cobra.Command{
		Use:   "delete-scene",
		Short: "Delete a scene and renumber the timeline after it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(project) == "" || strings.TrimSpace(scene) == "" {
				return fmt.Errorf("--project and --scene are required")
			}
			return runDeleteScene(project, scene)
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "Project id")
	cmd.Flags().StringVar(&scene, "scene", "", "Scene id")
	return cmd
}

func runDeleteScene(project, scene string) error {
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

	up := updater.New(structured, ep, embedding.NewHashEmbedder(0), updater.NewProjectLocks(), zap.NewNop())
	seq, err := up.DeleteScene(ctx, project, scene)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Deleted scene %s at sequence %d; later scenes renumbered.\n", scene, seq)
	return nil
}
