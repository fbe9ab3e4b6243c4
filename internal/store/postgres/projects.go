package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"loreweaver/internal/store"
)

func (c *Client) CreateProject(ctx context.Context, p store.Project) error {
	query := `INSERT INTO projects (id, name, description) VALUES ($1, $2, $3)`
	if _, err := c.pool.Exec(ctx, query, p.ID, p.Name, p.Description); err != nil {
		return fmt.Errorf("creating project: %w", err)
	}
	return nil
}

func (c *Client) GetProject(ctx context.Context, id string) (*store.Project, error) {
	query := `SELECT id, name, description, created_at FROM projects WHERE id = $1`

	var p store.Project
	err := c.pool.QueryRow(ctx, query, id).Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting project: %w", err)
	}
	return &p, nil
}

func (c *Client) ListProjects(ctx context.Context) ([]store.Project, error) {
	query := `SELECT id, name, description, created_at FROM projects ORDER BY created_at DESC, id`

	rows, err := c.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	projects := []store.Project{}
	for rows.Next() {
		var p store.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating projects: %w", err)
	}

	return projects, nil
}

func (c *Client) DeleteProject(ctx context.Context, id string) error {
	tag, err := c.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
