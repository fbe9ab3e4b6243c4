package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"go.uber.org/zap"

	"loreweaver/internal/assembler"
	"loreweaver/internal/config"
	"loreweaver/internal/critic"
	"loreweaver/internal/embedding"
	"loreweaver/internal/episodic"
	"loreweaver/internal/llm"
	"loreweaver/internal/pipeline"
	"loreweaver/internal/store"
	"loreweaver/internal/updater"
)

// app holds the wired engine for commands that dispatch to providers.
// Commands that only read or delete use openStores directly.
type app struct {
	cfg        *config.ProjectConfig
	structured store.Store
	episodic   episodic.Store
	updater    *updater.Updater
	synth      *updater.Synthesizer
	pipeline   *pipeline.Pipeline
	log        *zap.Logger
}

func (a *app) Close(ctx context.Context) {
	a.episodic.Close(ctx)
	a.structured.Close(ctx)
	_ = a.log.Sync()
}

func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadProjectConfig(configPath)
	if err != nil {
		return nil, err
	}

	log, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}

	structured, ep, err := openStores(ctx, cfg)
	if err != nil {
		return nil, err
	}

	providers, err := buildProviders(ctx, cfg)
	if err != nil {
		structured.Close(ctx)
		ep.Close(ctx)
		return nil, err
	}

	router, err := llm.NewRouter(cfg.Routing, providers)
	if err != nil {
		structured.Close(ctx)
		ep.Close(ctx)
		return nil, err
	}

	embedder, err := buildEmbedder(ctx, cfg, log)
	if err != nil {
		structured.Close(ctx)
		ep.Close(ctx)
		return nil, err
	}

	locks := updater.NewProjectLocks()
	up := updater.New(structured, ep, embedder, locks, log)

	synthProvider, err := router.Provider(llm.CapabilitySynthesize)
	if err != nil {
		structured.Close(ctx)
		ep.Close(ctx)
		return nil, err
	}
	synth := updater.NewSynthesizer(structured, ep, embedder, synthProvider, locks, cfg.Synthesis.EveryScenes, log)

	critiqueProvider, err := router.Provider(llm.CapabilityCritique)
	if err != nil {
		structured.Close(ctx)
		ep.Close(ctx)
		return nil, err
	}
	reviewer := critic.New(critiqueProvider, cfg.Critic.TraitThreshold)

	asm := assembler.New(structured, ep, cfg.Context)
	p := pipeline.New(structured, asm, router, embedder, reviewer, up, synth, cfg.Pipeline, log)

	return &app{
		cfg:        cfg,
		structured: structured,
		episodic:   ep,
		updater:    up,
		synth:      synth,
		pipeline:   p,
		log:        log,
	}, nil
}

func buildProviders(ctx context.Context, cfg *config.ProjectConfig) (map[string]llm.Provider, error) {
	providers := make(map[string]llm.Provider, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		apiKey := os.Getenv(pc.APIKeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("provider %s: environment variable %s is not set", name, pc.APIKeyEnv)
		}
		provider, err := llm.NewGenAIProvider(ctx, name, apiKey, pc.Model)
		if err != nil {
			return nil, err
		}
		providers[name] = provider
	}
	return providers, nil
}

// buildEmbedder picks the first configured provider carrying an embedding
// model. Without one the engine falls back to the deterministic hash
// embedder, which keeps the pipeline alive but degrades recall quality.
func buildEmbedder(ctx context.Context, cfg *config.ProjectConfig, log *zap.Logger) (embedding.Embedder, error) {
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pc := cfg.Providers[name]
		if pc.EmbeddingModel == "" {
			continue
		}
		apiKey := os.Getenv(pc.APIKeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("provider %s: environment variable %s is not set", name, pc.APIKeyEnv)
		}
		return embedding.NewGenAIEmbedder(ctx, apiKey, pc.EmbeddingModel)
	}

	log.Warn("no provider defines an embedding model, falling back to hash embeddings")
	return embedding.NewHashEmbedder(0), nil
}
