package postgres

import (
	"context"
	"fmt"
	"strings"

	"loreweaver/internal/store"
)

func (c *Client) CreateWorldRule(ctx context.Context, rule store.WorldRule) error {
	if _, err := store.ParseScope(rule.ActiveScope); err != nil {
		return fmt.Errorf("creating world rule: %w", err)
	}

	scope := strings.TrimSpace(rule.ActiveScope)
	if scope == "" {
		scope = "global"
	}

	query := `INSERT INTO world_rules (id, project_id, category, rule_text, active_scope, active) VALUES ($1, $2, $3, $4, $5, TRUE)`
	_, err := c.pool.Exec(ctx, query, rule.ID, rule.ProjectID, strings.ToLower(rule.Category), rule.RuleText, scope)
	if err != nil {
		return fmt.Errorf("creating world rule: %w", err)
	}
	return nil
}

func (c *Client) ListWorldRules(ctx context.Context, projectID string, onlyActive bool) ([]store.WorldRule, error) {
	query := `
	SELECT id, project_id, category, rule_text, active_scope, active
	FROM world_rules
	WHERE project_id = $1 AND (NOT $2 OR active)
	ORDER BY category, id
	`

	rows, err := c.pool.Query(ctx, query, projectID, onlyActive)
	if err != nil {
		return nil, fmt.Errorf("listing world rules: %w", err)
	}
	defer rows.Close()

	rules := []store.WorldRule{}
	for rows.Next() {
		var rule store.WorldRule
		if err := rows.Scan(&rule.ID, &rule.ProjectID, &rule.Category, &rule.RuleText, &rule.ActiveScope, &rule.Active); err != nil {
			return nil, fmt.Errorf("scanning world rule: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating world rules: %w", err)
	}

	return rules, nil
}

func (c *Client) DeactivateWorldRule(ctx context.Context, projectID, id string) error {
	tag, err := c.pool.Exec(ctx,
		`UPDATE world_rules SET active = FALSE WHERE project_id = $1 AND id = $2`,
		projectID, id,
	)
	if err != nil {
		return fmt.Errorf("deactivating world rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
