package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"go.uber.org/zap"

	"loreweaver/internal/config"
	"loreweaver/internal/embedding"
	"loreweaver/internal/updater"
)

func seedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Initialize a story from a seed file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(file)
		},
	}
	cmd.Flags().StringVar(&file, "file", seedPath, "Story seed file")
	return cmd
}

func runSeed(file string) error {
	ctx := context.Background()

	cfg, err := config.LoadProjectConfig(configPath)
	if err != nil {
		return err
	}
	seed, err := config.LoadStorySeed(file)
	if err != nil {
		return err
	}

	structured, ep, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer structured.Close(ctx)
	defer ep.Close(ctx)

	// Seeding needs no providers; the embedder is never dispatched here.
	up := updater.New(structured, ep, embedding.NewHashEmbedder(0), updater.NewProjectLocks(), zap.NewNop())
	projectID, err := up.InitializeStory(ctx, *seed)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Initialized story %q\nProject id: %s\n", seed.Name, projectID)
	return nil
}
