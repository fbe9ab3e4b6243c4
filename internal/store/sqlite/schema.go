package sqlite

import (
	"context"
	"fmt"
	"strings"
)

func (c *Client) EnsureSchema(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS projects (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		description TEXT DEFAULT '',
		created_at  TEXT DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS characters (
		id              TEXT PRIMARY KEY,
		project_id      TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		name            TEXT NOT NULL,
		name_normalized TEXT NOT NULL,
		core_psychology TEXT NOT NULL,
		current_state   TEXT DEFAULT '{}',
		relationships   TEXT DEFAULT '{}',
		retired         INTEGER DEFAULT 0,
		created_at      TEXT DEFAULT (datetime('now')),
		CONSTRAINT uq_character_name UNIQUE (project_id, name_normalized)
	);

	CREATE TABLE IF NOT EXISTS world_rules (
		id           TEXT PRIMARY KEY,
		project_id   TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		category     TEXT NOT NULL,
		rule_text    TEXT NOT NULL,
		active_scope TEXT NOT NULL DEFAULT 'global',
		active       INTEGER DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS timeline_events (
		id                   TEXT PRIMARY KEY,
		project_id           TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		sequence_index       INTEGER NOT NULL,
		location             TEXT DEFAULT '',
		participant_ids      TEXT DEFAULT '[]',
		summary              TEXT NOT NULL,
		causal_prerequisites TEXT DEFAULT '[]',
		CONSTRAINT uq_event_sequence UNIQUE (project_id, sequence_index)
	);

	CREATE TABLE IF NOT EXISTS scenes (
		id             TEXT PRIMARY KEY,
		project_id     TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		sequence_index INTEGER NOT NULL,
		prompt         TEXT DEFAULT '',
		scene_text     TEXT NOT NULL,
		critic_report  TEXT,
		location       TEXT DEFAULT '',
		created_at     TEXT DEFAULT (datetime('now')),
		CONSTRAINT uq_scene_sequence UNIQUE (project_id, sequence_index)
	);

	CREATE INDEX IF NOT EXISTS idx_characters_project ON characters (project_id);
	CREATE INDEX IF NOT EXISTS idx_rules_project ON world_rules (project_id);
	CREATE INDEX IF NOT EXISTS idx_events_project_seq ON timeline_events (project_id, sequence_index);
	CREATE INDEX IF NOT EXISTS idx_scenes_project_seq ON scenes (project_id, sequence_index);
	`

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range splitStatements(ddl) {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing DDL: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing schema transaction: %w", err)
	}

	return nil
}

func splitStatements(ddl string) []string {
	var statements []string
	var current strings.Builder

	for _, line := range strings.Split(ddl, "\n") {
		stripped := strings.TrimSpace(line)
		if strings.HasPrefix(stripped, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")

		if strings.HasSuffix(stripped, ";") {
			statements = append(statements, current.String())
			current.Reset()
		}
	}

	if current.Len() > 0 {
		statements = append(statements, current.String())
	}

	return statements
}
