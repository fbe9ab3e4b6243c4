package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"loreweaver/internal/store"
)

func (c *Client) CommitScene(ctx context.Context, in store.CommitInput) (int, error) {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning commit transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var max sql.NullInt64
	err = tx.QueryRow(ctx,
		`SELECT MAX(sequence_index) FROM timeline_events WHERE project_id = $1`,
		in.ProjectID,
	).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("reading max sequence index: %w", err)
	}
	next := int(max.Int64) + 1

	for _, prereq := range in.CausalPrerequisites {
		var seq int
		err := tx.QueryRow(ctx,
			`SELECT sequence_index FROM timeline_events WHERE project_id = $1 AND id = $2`,
			in.ProjectID, prereq,
		).Scan(&seq)
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("causal prerequisite %s: %w", prereq, store.ErrNotFound)
		}
		if err != nil {
			return 0, fmt.Errorf("checking causal prerequisite: %w", err)
		}
		if seq >= next {
			return 0, fmt.Errorf("causal prerequisite %s has sequence %d >= %d: %w", prereq, seq, next, store.ErrSequenceConflict)
		}
	}

	participantsJSON, err := json.Marshal(orEmptyStrings(in.ParticipantIDs))
	if err != nil {
		return 0, fmt.Errorf("marshaling participants: %w", err)
	}
	prereqsJSON, err := json.Marshal(orEmptyStrings(in.CausalPrerequisites))
	if err != nil {
		return 0, fmt.Errorf("marshaling causal prerequisites: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO timeline_events (id, project_id, sequence_index, location, participant_ids, summary, causal_prerequisites)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		in.SceneID, in.ProjectID, next, in.Location, participantsJSON, in.Summary, prereqsJSON,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, store.ErrSequenceConflict
		}
		return 0, fmt.Errorf("inserting timeline event: %w", err)
	}

	reportJSON, err := json.Marshal(in.Report)
	if err != nil {
		return 0, fmt.Errorf("marshaling critic report: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO scenes (id, project_id, sequence_index, prompt, scene_text, critic_report, location)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		in.SceneID, in.ProjectID, next, in.Prompt, in.SceneText, reportJSON, in.Location,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, store.ErrSequenceConflict
		}
		return 0, fmt.Errorf("inserting scene: %w", err)
	}

	for _, patch := range in.StatePatches {
		var stateJSON []byte
		err := tx.QueryRow(ctx,
			`SELECT current_state FROM characters WHERE project_id = $1 AND id = $2 FOR UPDATE`,
			in.ProjectID, patch.CharacterID,
		).Scan(&stateJSON)
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("patching character %s: %w", patch.CharacterID, store.ErrNotFound)
		}
		if err != nil {
			return 0, fmt.Errorf("reading character state: %w", err)
		}

		var current map[string]any
		if err := json.Unmarshal(stateJSON, &current); err != nil {
			return 0, fmt.Errorf("unmarshaling character state: %w", err)
		}

		merged, err := json.Marshal(store.MergeState(current, patch.Set))
		if err != nil {
			return 0, fmt.Errorf("marshaling character state: %w", err)
		}
		_, err = tx.Exec(ctx,
			`UPDATE characters SET current_state = $1 WHERE project_id = $2 AND id = $3`,
			merged, in.ProjectID, patch.CharacterID,
		)
		if err != nil {
			return 0, fmt.Errorf("updating character state: %w", err)
		}
	}

	for _, rule := range in.NewRules {
		if _, err := store.ParseScope(rule.ActiveScope); err != nil {
			return 0, fmt.Errorf("new world rule: %w", err)
		}
		scope := strings.TrimSpace(rule.ActiveScope)
		if scope == "" {
			scope = "global"
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO world_rules (id, project_id, category, rule_text, active_scope, active) VALUES ($1, $2, $3, $4, $5, TRUE)`,
			rule.ID, in.ProjectID, strings.ToLower(rule.Category), rule.RuleText, scope,
		)
		if err != nil {
			return 0, fmt.Errorf("inserting world rule: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return 0, store.ErrSequenceConflict
		}
		return 0, fmt.Errorf("committing scene transaction: %w", err)
	}

	return next, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func orEmptyStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
