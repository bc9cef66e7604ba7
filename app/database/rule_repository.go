package database

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ruleRepository struct {
	db *DB
}

func NewRuleRepository(db *DB) RuleRepository {
	return &ruleRepository{db: db}
}

// ListRules returns rules for a source (plus global rules) in evaluation
// order: priority descending, declaration order within a priority.
func (r *ruleRepository) ListRules(sourceID string, enabledOnly bool) ([]FilterRule, error) {
	query := `
		SELECT id, COALESCE(source_id, ''), kind, mode, pattern, priority, position, enabled
		FROM filter_rules
		WHERE (source_id = ? OR source_id IS NULL)`
	if enabledOnly {
		query += " AND enabled = 1"
	}
	query += " ORDER BY priority DESC, position ASC"

	rows, err := r.db.Query(query, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []FilterRule
	for rows.Next() {
		var rule FilterRule
		var enabled int
		err := rows.Scan(&rule.ID, &rule.SourceID, &rule.Kind, &rule.Mode,
			&rule.Pattern, &rule.Priority, &rule.Position, &enabled)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule row: %w", err)
		}
		rule.Enabled = enabled != 0
		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rule rows: %w", err)
	}

	return rules, nil
}

// ReplaceRules swaps the full rule set of a source, assigning positions from
// slice order.
func (r *ruleRepository) ReplaceRules(sourceID string, rules []FilterRule) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM filter_rules WHERE source_id = ?", sourceID); err != nil {
		return fmt.Errorf("failed to clear rules: %w", err)
	}

	now := formatTime(time.Now())
	for i, rule := range rules {
		_, err := tx.Exec(`
			INSERT INTO filter_rules (id, source_id, kind, mode, pattern, priority, position, enabled, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, uuid.NewString(), sourceID, rule.Kind, rule.Mode, rule.Pattern, rule.Priority, i, boolToInt(rule.Enabled), now)
		if err != nil {
			return fmt.Errorf("failed to insert rule: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rules: %w", err)
	}

	return nil
}
