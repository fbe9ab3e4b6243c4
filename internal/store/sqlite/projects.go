package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"loreweaver/internal/store"
)

func (c *Client) CreateProject(ctx context.Context, p store.Project) error {
	query := `INSERT INTO projects (id, name, description) VALUES (?, ?, ?)`
	if _, err := c.db.ExecContext(ctx, query, p.ID, p.Name, p.Description); err != nil {
		return fmt.Errorf("creating project: %w", err)
	}
	return nil
}

func (c *Client) GetProject(ctx context.Context, id string) (*store.Project, error) {
	query := `SELECT id, name, description, created_at FROM projects WHERE id = ?`

	var p store.Project
	var createdAt string
	err := c.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Name, &p.Description, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting project: %w", err)
	}
	p.CreatedAt = parseTimestamp(createdAt)
	return &p, nil
}

func (c *Client) ListProjects(ctx context.Context) ([]store.Project, error) {
	query := `SELECT id, name, description, created_at FROM projects ORDER BY created_at DESC, id`

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	projects := []store.Project{}
	for rows.Next() {
		var p store.Project
		var createdAt string
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning project: %w", err)
		}
		p.CreatedAt = parseTimestamp(createdAt)
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating projects: %w", err)
	}

	return projects, nil
}

func (c *Client) DeleteProject(ctx context.Context, id string) error {
	result, err := c.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting project: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting project: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func parseTimestamp(raw string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts
		}
	}
	return time.Time{}
}
