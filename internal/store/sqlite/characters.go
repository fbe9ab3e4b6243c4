package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"loreweaver/internal/store"
)

func (c *Client) CreateCharacter(ctx context.Context, character store.Character) error {
	stateJSON, err := json.Marshal(orEmptyState(character.CurrentState))
	if err != nil {
		return fmt.Errorf("marshaling current state: %w", err)
	}
	relJSON, err := json.Marshal(orEmptyRelationships(character.Relationships))
	if err != nil {
		return fmt.Errorf("marshaling relationships: %w", err)
	}

	query := `
	INSERT INTO characters (id, project_id, name, name_normalized, core_psychology, current_state, relationships, retired)
	VALUES (?, ?, ?, ?, ?, ?, ?, 0)
	`
	_, err = c.db.ExecContext(ctx, query,
		character.ID,
		character.ProjectID,
		character.Name,
		strings.ToLower(character.Name),
		character.CorePsychology,
		string(stateJSON),
		string(relJSON),
	)
	if err != nil {
		return fmt.Errorf("creating character: %w", err)
	}
	return nil
}

func (c *Client) GetCharacter(ctx context.Context, projectID, id string) (*store.Character, error) {
	query := `
	SELECT id, project_id, name, core_psychology, current_state, relationships, retired, created_at
	FROM characters
	WHERE project_id = ? AND id = ?
	`
	return c.scanCharacterRow(c.db.QueryRowContext(ctx, query, projectID, id))
}

func (c *Client) GetCharacterByName(ctx context.Context, projectID, name string) (*store.Character, error) {
	query := `
	SELECT id, project_id, name, core_psychology, current_state, relationships, retired, created_at
	FROM characters
	WHERE project_id = ? AND name_normalized = ?
	`
	return c.scanCharacterRow(c.db.QueryRowContext(ctx, query, projectID, strings.ToLower(strings.TrimSpace(name))))
}

func (c *Client) ListCharacters(ctx context.Context, projectID string, includeRetired bool) ([]store.Character, error) {
	query := `
	SELECT id, project_id, name, core_psychology, current_state, relationships, retired, created_at
	FROM characters
	WHERE project_id = ? AND (? = 1 OR retired = 0)
	ORDER BY name_normalized
	`

	include := 0
	if includeRetired {
		include = 1
	}

	rows, err := c.db.QueryContext(ctx, query, projectID, include)
	if err != nil {
		return nil, fmt.Errorf("listing characters: %w", err)
	}
	defer rows.Close()

	characters := []store.Character{}
	for rows.Next() {
		character, err := scanCharacter(rows)
		if err != nil {
			return nil, err
		}
		characters = append(characters, *character)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating characters: %w", err)
	}

	return characters, nil
}

func (c *Client) UpdateCharacterState(ctx context.Context, projectID, characterID string, state map[string]any) error {
	stateJSON, err := json.Marshal(orEmptyState(state))
	if err != nil {
		return fmt.Errorf("marshaling current state: %w", err)
	}

	result, err := c.db.ExecContext(ctx,
		`UPDATE characters SET current_state = ? WHERE project_id = ? AND id = ?`,
		string(stateJSON), projectID, characterID,
	)
	if err != nil {
		return fmt.Errorf("updating character state: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating character state: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (c *Client) RetireCharacter(ctx context.Context, projectID, id string) error {
	result, err := c.db.ExecContext(ctx,
		`UPDATE characters SET retired = 1 WHERE project_id = ? AND id = ?`,
		projectID, id,
	)
	if err != nil {
		return fmt.Errorf("retiring character: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("retiring character: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (c *Client) scanCharacterRow(row *sql.Row) (*store.Character, error) {
	character, err := scanCharacter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return character, nil
}

func scanCharacter(row rowScanner) (*store.Character, error) {
	var character store.Character
	var stateJSON, relJSON, createdAt string
	var retired int

	err := row.Scan(
		&character.ID,
		&character.ProjectID,
		&character.Name,
		&character.CorePsychology,
		&stateJSON,
		&relJSON,
		&retired,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("scanning character: %w", err)
	}

	if err := json.Unmarshal([]byte(stateJSON), &character.CurrentState); err != nil {
		return nil, fmt.Errorf("unmarshaling current state: %w", err)
	}
	if err := json.Unmarshal([]byte(relJSON), &character.Relationships); err != nil {
		return nil, fmt.Errorf("unmarshaling relationships: %w", err)
	}
	character.Retired = retired != 0
	character.CreatedAt = parseTimestamp(createdAt)

	return &character, nil
}

func orEmptyState(state map[string]any) map[string]any {
	if state == nil {
		return map[string]any{}
	}
	return state
}

func orEmptyRelationships(relationships map[string]string) map[string]string {
	if relationships == nil {
		return map[string]string{}
	}
	return relationships
}
