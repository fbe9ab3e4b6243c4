package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"loreweaver/internal/store"
)

// DeleteScene removes the scene and its timeline event, then renumbers every
// later event down by one so sequence indexes stay gapless. Causal
// prerequisite references to the deleted event are stripped from dependents.
func (c *Client) DeleteScene(ctx context.Context, projectID, sceneID string) (int, error) {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var removed int
	err = tx.QueryRow(ctx,
		`SELECT sequence_index FROM timeline_events WHERE project_id = $1 AND id = $2`,
		projectID, sceneID,
	).Scan(&removed)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("locating scene: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM scenes WHERE project_id = $1 AND id = $2`, projectID, sceneID); err != nil {
		return 0, fmt.Errorf("deleting scene: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM timeline_events WHERE project_id = $1 AND id = $2`, projectID, sceneID); err != nil {
		return 0, fmt.Errorf("deleting timeline event: %w", err)
	}

	if err := stripPrerequisite(ctx, tx, projectID, sceneID); err != nil {
		return 0, err
	}

	// Two-phase shift keeps the UNIQUE(project_id, sequence_index)
	// constraint satisfied regardless of row visit order.
	shifts := []struct{ table, phase1, phase2 string }{
		{
			"timeline_events",
			`UPDATE timeline_events SET sequence_index = -(sequence_index - 1) WHERE project_id = $1 AND sequence_index > $2`,
			`UPDATE timeline_events SET sequence_index = -sequence_index WHERE project_id = $1 AND sequence_index < 0`,
		},
		{
			"scenes",
			`UPDATE scenes SET sequence_index = -(sequence_index - 1) WHERE project_id = $1 AND sequence_index > $2`,
			`UPDATE scenes SET sequence_index = -sequence_index WHERE project_id = $1 AND sequence_index < 0`,
		},
	}
	for _, shift := range shifts {
		if _, err := tx.Exec(ctx, shift.phase1, projectID, removed); err != nil {
			return 0, fmt.Errorf("renumbering %s: %w", shift.table, err)
		}
		if _, err := tx.Exec(ctx, shift.phase2, projectID); err != nil {
			return 0, fmt.Errorf("renumbering %s: %w", shift.table, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing delete transaction: %w", err)
	}

	return removed, nil
}

func stripPrerequisite(ctx context.Context, tx pgx.Tx, projectID, sceneID string) error {
	rows, err := tx.Query(ctx,
		`SELECT id, causal_prerequisites FROM timeline_events WHERE project_id = $1`,
		projectID,
	)
	if err != nil {
		return fmt.Errorf("listing dependents: %w", err)
	}

	type update struct {
		id      string
		prereqs []string
	}
	var updates []update

	for rows.Next() {
		var id string
		var prereqsJSON []byte
		if err := rows.Scan(&id, &prereqsJSON); err != nil {
			rows.Close()
			return fmt.Errorf("scanning dependent: %w", err)
		}
		var prereqs []string
		if err := json.Unmarshal(prereqsJSON, &prereqs); err != nil {
			rows.Close()
			return fmt.Errorf("unmarshaling causal prerequisites: %w", err)
		}
		filtered := make([]string, 0, len(prereqs))
		changed := false
		for _, prereq := range prereqs {
			if prereq == sceneID {
				changed = true
				continue
			}
			filtered = append(filtered, prereq)
		}
		if changed {
			updates = append(updates, update{id: id, prereqs: filtered})
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating dependents: %w", err)
	}

	for _, u := range updates {
		prereqsJSON, err := json.Marshal(orEmptyStrings(u.prereqs))
		if err != nil {
			return fmt.Errorf("marshaling causal prerequisites: %w", err)
		}
		_, err = tx.Exec(ctx,
			`UPDATE timeline_events SET causal_prerequisites = $1 WHERE project_id = $2 AND id = $3`,
			prereqsJSON, projectID, u.id,
		)
		if err != nil {
			return fmt.Errorf("updating dependent %s: %w", u.id, err)
		}
	}

	return nil
}
