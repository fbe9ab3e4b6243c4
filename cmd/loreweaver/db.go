package main

import (
	"context"
	"fmt"
	"strings"

	"loreweaver/internal/config"
	"loreweaver/internal/episodic"
	"loreweaver/internal/store"
	"loreweaver/internal/store/postgres"
	"loreweaver/internal/store/sqlite"
)

const configPath = "loreweaver.yaml"

// openStores opens the structured store by DSN scheme and the episodic
// store alongside it, ensuring both schemas.
func openStores(ctx context.Context, cfg *config.ProjectConfig) (store.Store, episodic.Store, error) {
	var structured store.Store
	switch {
	case strings.HasPrefix(cfg.Database.DSN, "postgres://"), strings.HasPrefix(cfg.Database.DSN, "postgresql://"):
		client, err := postgres.New(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("opening postgres store: %w", err)
		}
		structured = client
	case strings.HasPrefix(cfg.Database.DSN, "sqlite://"):
		client, err := sqlite.New(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		structured = client
	default:
		return nil, nil, fmt.Errorf("unsupported database DSN scheme: %s", cfg.Database.DSN)
	}

	if err := structured.EnsureSchema(ctx); err != nil {
		structured.Close(ctx)
		return nil, nil, err
	}

	ep, err := episodic.NewSQLite(ctx, cfg.Episodic.DSN)
	if err != nil {
		structured.Close(ctx)
		return nil, nil, fmt.Errorf("opening episodic store: %w", err)
	}
	if err := ep.EnsureSchema(ctx); err != nil {
		ep.Close(ctx)
		structured.Close(ctx)
		return nil, nil, err
	}

	return structured, ep, nil
}
