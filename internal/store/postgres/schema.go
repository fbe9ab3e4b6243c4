package postgres

import (
	"context"
	"fmt"
)

func (c *Client) EnsureSchema(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS characters (
			id              TEXT PRIMARY KEY,
			project_id      TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			name            TEXT NOT NULL,
			name_normalized TEXT NOT NULL,
			core_psychology TEXT NOT NULL,
			current_state   JSONB NOT NULL DEFAULT '{}'::jsonb,
			relationships   JSONB NOT NULL DEFAULT '{}'::jsonb,
			retired         BOOLEAN NOT NULL DEFAULT FALSE,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
			CONSTRAINT uq_character_name UNIQUE (project_id, name_normalized)
		)`,
		`CREATE TABLE IF NOT EXISTS world_rules (
			id           TEXT PRIMARY KEY,
			project_id   TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			category     TEXT NOT NULL,
			rule_text    TEXT NOT NULL,
			active_scope TEXT NOT NULL DEFAULT 'global',
			active       BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE TABLE IF NOT EXISTS timeline_events (
			id                   TEXT PRIMARY KEY,
			project_id           TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			sequence_index       INTEGER NOT NULL,
			location             TEXT NOT NULL DEFAULT '',
			participant_ids      JSONB NOT NULL DEFAULT '[]'::jsonb,
			summary              TEXT NOT NULL,
			causal_prerequisites JSONB NOT NULL DEFAULT '[]'::jsonb,
			CONSTRAINT uq_event_sequence UNIQUE (project_id, sequence_index)
		)`,
		`CREATE TABLE IF NOT EXISTS scenes (
			id             TEXT PRIMARY KEY,
			project_id     TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			sequence_index INTEGER NOT NULL,
			prompt         TEXT NOT NULL DEFAULT '',
			scene_text     TEXT NOT NULL,
			critic_report  JSONB,
			location       TEXT NOT NULL DEFAULT '',
			created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
			CONSTRAINT uq_scene_sequence UNIQUE (project_id, sequence_index)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_characters_project ON characters (project_id)`,
		`CREATE INDEX IF NOT EXISTS idx_rules_project ON world_rules (project_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_project_seq ON timeline_events (project_id, sequence_index)`,
		`CREATE INDEX IF NOT EXISTS idx_scenes_project_seq ON scenes (project_id, sequence_index)`,
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, stmt := range ddl {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("executing DDL: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing schema transaction: %w", err)
	}

	return nil
}
