package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"loreweaver/internal/store"
)

const sceneColumns = `id, project_id, sequence_index, prompt, scene_text, critic_report, location, created_at`

func (c *Client) ListScenes(ctx context.Context, projectID string) ([]store.Scene, error) {
	query := `SELECT ` + sceneColumns + ` FROM scenes WHERE project_id = ? ORDER BY sequence_index ASC`
	return c.queryScenes(ctx, query, projectID)
}

func (c *Client) GetScene(ctx context.Context, projectID, sceneID string) (*store.Scene, error) {
	query := `SELECT ` + sceneColumns + ` FROM scenes WHERE project_id = ? AND id = ?`

	scenes, err := c.queryScenes(ctx, query, projectID, sceneID)
	if err != nil {
		return nil, err
	}
	if len(scenes) == 0 {
		return nil, store.ErrNotFound
	}
	return &scenes[0], nil
}

// RecentScenes returns the newest n scenes in chronological order.
func (c *Client) RecentScenes(ctx context.Context, projectID string, n int) ([]store.Scene, error) {
	if n <= 0 {
		return []store.Scene{}, nil
	}

	query := `
	SELECT ` + sceneColumns + ` FROM (
		SELECT ` + sceneColumns + ` FROM scenes
		WHERE project_id = ?
		ORDER BY sequence_index DESC
		LIMIT ?
	) ORDER BY sequence_index ASC
	`
	return c.queryScenes(ctx, query, projectID, n)
}

func (c *Client) queryScenes(ctx context.Context, query string, args ...any) ([]store.Scene, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying scenes: %w", err)
	}
	defer rows.Close()

	scenes := []store.Scene{}
	for rows.Next() {
		var scene store.Scene
		var reportJSON sql.NullString
		var createdAt string
		err := rows.Scan(
			&scene.ID,
			&scene.ProjectID,
			&scene.SequenceIndex,
			&scene.Prompt,
			&scene.SceneText,
			&reportJSON,
			&scene.Location,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning scene: %w", err)
		}
		if reportJSON.Valid && reportJSON.String != "" {
			var report store.CriticReport
			if err := json.Unmarshal([]byte(reportJSON.String), &report); err != nil {
				return nil, fmt.Errorf("unmarshaling critic report: %w", err)
			}
			scene.CriticReport = &report
		}
		scene.CreatedAt = parseTimestamp(createdAt)
		scenes = append(scenes, scene)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scenes: %w", err)
	}

	return scenes, nil
}
