package sqlite

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

	query := `INSERT INTO world_rules (id, project_id, category, rule_text, active_scope, active) VALUES (?, ?, ?, ?, ?, 1)`
	_, err := c.db.ExecContext(ctx, query, rule.ID, rule.ProjectID, strings.ToLower(rule.Category), rule.RuleText, scope)
	if err != nil {
		return fmt.Errorf("creating world rule: %w", err)
	}
	return nil
}

func (c *Client) ListWorldRules(ctx context.Context, projectID string, onlyActive bool) ([]store.WorldRule, error) {
	query := `
	SELECT id, project_id, category, rule_text, active_scope, active
	FROM world_rules
	WHERE project_id = ? AND (? = 0 OR active = 1)
	ORDER BY category, id
	`

	active := 0
	if onlyActive {
		active = 1
	}

	rows, err := c.db.QueryContext(ctx, query, projectID, active)
	if err != nil {
		return nil, fmt.Errorf("listing world rules: %w", err)
	}
	defer rows.Close()

	rules := []store.WorldRule{}
	for rows.Next() {
		var rule store.WorldRule
		var activeFlag int
		if err := rows.Scan(&rule.ID, &rule.ProjectID, &rule.Category, &rule.RuleText, &rule.ActiveScope, &activeFlag); err != nil {
			return nil, fmt.Errorf("scanning world rule: %w", err)
		}
		rule.Active = activeFlag != 0
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating world rules: %w", err)
	}

	return rules, nil
}

func (c *Client) DeactivateWorldRule(ctx context.Context, projectID, id string) error {
	result, err := c.db.ExecContext(ctx,
		`UPDATE world_rules SET active = 0 WHERE project_id = ? AND id = ?`,
		projectID, id,
	)
	if err != nil {
		return fmt.Errorf("deactivating world rule: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivating world rule: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
