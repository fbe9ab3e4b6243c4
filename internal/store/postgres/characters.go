package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"loreweaver/internal/store"
)

const characterColumns = `id, project_id, name, core_psychology, current_state, relationships, retired, created_at`

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
	VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE)
	`
	_, err = c.pool.Exec(ctx, query,
		character.ID,
		character.ProjectID,
		character.Name,
		strings.ToLower(character.Name),
		character.CorePsychology,
		stateJSON,
		relJSON,
	)
	if err != nil {
		return fmt.Errorf("creating character: %w", err)
	}
	return nil
}

func (c *Client) GetCharacter(ctx context.Context, projectID, id string) (*store.Character, error) {
	query := `SELECT ` + characterColumns + ` FROM characters WHERE project_id = $1 AND id = $2`
	return c.scanCharacterRow(c.pool.QueryRow(ctx, query, projectID, id))
}

func (c *Client) GetCharacterByName(ctx context.Context, projectID, name string) (*store.Character, error) {
	query := `SELECT ` + characterColumns + ` FROM characters WHERE project_id = $1 AND name_normalized = $2`
	return c.scanCharacterRow(c.pool.QueryRow(ctx, query, projectID, strings.ToLower(strings.TrimSpace(name))))
}

func (c *Client) ListCharacters(ctx context.Context, projectID string, includeRetired bool) ([]store.Character, error) {
	query := `
	SELECT ` + characterColumns + `
	FROM characters
	WHERE project_id = $1 AND ($2 OR NOT retired)
	ORDER BY name_normalized
	`

	rows, err := c.pool.Query(ctx, query, projectID, includeRetired)
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

	tag, err := c.pool.Exec(ctx,
		`UPDATE characters SET current_state = $1 WHERE project_id = $2 AND id = $3`,
		stateJSON, projectID, characterID,
	)
	if err != nil {
		return fmt.Errorf("updating character state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (c *Client) RetireCharacter(ctx context.Context, projectID, id string) error {
	tag, err := c.pool.Exec(ctx,
		`UPDATE characters SET retired = TRUE WHERE project_id = $1 AND id = $2`,
		projectID, id,
	)
	if err != nil {
		return fmt.Errorf("retiring character: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (c *Client) scanCharacterRow(row pgx.Row) (*store.Character, error) {
	character, err := scanCharacter(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return character, nil
}

func scanCharacter(row rowScanner) (*store.Character, error) {
	var character store.Character
	var stateJSON, relJSON []byte

	err := row.Scan(
		&character.ID,
		&character.ProjectID,
		&character.Name,
		&character.CorePsychology,
		&stateJSON,
		&relJSON,
		&character.Retired,
		&character.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, pgx.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("scanning character: %w", err)
	}

	if err := json.Unmarshal(stateJSON, &character.CurrentState); err != nil {
		return nil, fmt.Errorf("unmarshaling current state: %w", err)
	}
	if err := json.Unmarshal(relJSON, &character.Relationships); err != nil {
		return nil, fmt.Errorf("unmarshaling relationships: %w", err)
	}

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
