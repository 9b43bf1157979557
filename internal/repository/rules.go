package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/boardsync/boardsync/pkg/database"
	"github.com/boardsync/boardsync/pkg/logger"
	"github.com/boardsync/boardsync/pkg/models"
)

var ErrRuleNotFound = errors.New("sync rule not found")

// Rules persists sync rules and their execution audit trail
type Rules struct {
	db     *database.PostgreSQL
	logger *logger.Logger
}

// NewRules creates a new rules repository
func NewRules(db *database.PostgreSQL, logger *logger.Logger) *Rules {
	return &Rules{db: db, logger: logger}
}

const ruleColumns = `rule_id, rule_name, integration_id, board_mapping_id, is_enabled, trigger_type,
	       trigger_table, trigger_field, trigger_value, trigger_condition, action_type,
	       action_config, priority, cooldown_ms, last_executed, execution_count, created, updated`

func scanRule(row pgx.Row) (*models.SyncRule, error) {
	var r models.SyncRule
	err := row.Scan(
		&r.RuleID,
		&r.RuleName,
		&r.IntegrationID,
		&r.BoardMappingID,
		&r.IsEnabled,
		&r.TriggerType,
		&r.TriggerTable,
		&r.TriggerField,
		&r.TriggerValue,
		&r.TriggerCondition,
		&r.ActionType,
		&r.ActionConfig,
		&r.Priority,
		&r.CooldownMs,
		&r.LastExecuted,
		&r.ExecutionCount,
		&r.Created,
		&r.Updated,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Create inserts a new sync rule
func (s *Rules) Create(ctx context.Context, r *models.SyncRule) (*models.SyncRule, error) {
	s.logger.Infof("Creating sync rule: %s", r.RuleName)

	query := `
		INSERT INTO sync_rules (rule_name, integration_id, board_mapping_id, is_enabled,
		                        trigger_type, trigger_table, trigger_field, trigger_value,
		                        trigger_condition, action_type, action_config, priority, cooldown_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING ` + ruleColumns

	created, err := scanRule(s.db.Pool().QueryRow(ctx, query,
		r.RuleName, r.IntegrationID, r.BoardMappingID, r.IsEnabled,
		r.TriggerType, r.TriggerTable, r.TriggerField, r.TriggerValue,
		r.TriggerCondition, r.ActionType, r.ActionConfig, r.Priority, r.CooldownMs))
	if err != nil {
		s.logger.Errorf("Failed to create rule: %v", err)
		return nil, err
	}
	return created, nil
}

// Get retrieves one rule by ID
func (s *Rules) Get(ctx context.Context, ruleID string) (*models.SyncRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM sync_rules WHERE rule_id = $1`

	r, err := scanRule(s.db.Pool().QueryRow(ctx, query, ruleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRuleNotFound
		}
		return nil, err
	}
	return r, nil
}

// List retrieves rules, optionally filtered by integration
func (s *Rules) List(ctx context.Context, integrationID string) ([]*models.SyncRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM sync_rules`
	var args []interface{}
	if integrationID != "" {
		query += ` WHERE integration_id = $1`
		args = append(args, integrationID)
	}
	query += ` ORDER BY priority, rule_name`

	rows, err := s.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*models.SyncRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// ListEnabledForTable retrieves the enabled rules reacting to one
// trigger table, ordered by ascending priority so lower runs first.
func (s *Rules) ListEnabledForTable(ctx context.Context, table string) ([]*models.SyncRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM sync_rules
		WHERE is_enabled AND trigger_table = $1
		ORDER BY priority, rule_name`

	rows, err := s.db.Pool().Query(ctx, query, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*models.SyncRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// ListScheduled retrieves enabled onSchedule rules for the timer driver
func (s *Rules) ListScheduled(ctx context.Context) ([]*models.SyncRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM sync_rules
		WHERE is_enabled AND trigger_type = $1
		ORDER BY priority, rule_name`

	rows, err := s.db.Pool().Query(ctx, query, models.TriggerOnSchedule)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*models.SyncRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// Update modifies a rule's configuration
func (s *Rules) Update(ctx context.Context, r *models.SyncRule) (*models.SyncRule, error) {
	query := `
		UPDATE sync_rules
		SET rule_name = $2, board_mapping_id = $3, is_enabled = $4, trigger_type = $5,
		    trigger_table = $6, trigger_field = $7, trigger_value = $8, trigger_condition = $9,
		    action_type = $10, action_config = $11, priority = $12, cooldown_ms = $13,
		    updated = now()
		WHERE rule_id = $1
		RETURNING ` + ruleColumns

	updated, err := scanRule(s.db.Pool().QueryRow(ctx, query,
		r.RuleID, r.RuleName, r.BoardMappingID, r.IsEnabled, r.TriggerType,
		r.TriggerTable, r.TriggerField, r.TriggerValue, r.TriggerCondition,
		r.ActionType, r.ActionConfig, r.Priority, r.CooldownMs))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRuleNotFound
		}
		return nil, err
	}
	return updated, nil
}

// SetEnabled toggles a rule without touching the rest of its config
func (s *Rules) SetEnabled(ctx context.Context, ruleID string, enabled bool) error {
	tag, err := s.db.Pool().Exec(ctx,
		`UPDATE sync_rules SET is_enabled = $2, updated = now() WHERE rule_id = $1`, ruleID, enabled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// MarkExecuted stamps a firing onto the rule for cooldown tracking
func (s *Rules) MarkExecuted(ctx context.Context, ruleID string, executedAt time.Time) error {
	query := `
		UPDATE sync_rules
		SET last_executed = $2, execution_count = execution_count + 1, updated = now()
		WHERE rule_id = $1
	`
	tag, err := s.db.Pool().Exec(ctx, query, ruleID, executedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// Delete removes a rule and its execution history
func (s *Rules) Delete(ctx context.Context, ruleID string) error {
	tag, err := s.db.Pool().Exec(ctx, `DELETE FROM sync_rules WHERE rule_id = $1`, ruleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// RecordExecution appends one rule execution audit record
func (s *Rules) RecordExecution(ctx context.Context, e *models.RuleExecution) error {
	query := `
		INSERT INTO rule_executions (rule_id, status, trigger_details, execution_details,
		                             error_message, duration_ms, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.Pool().Exec(ctx, query,
		e.RuleID, e.Status, e.TriggerDetails, e.ExecutionDetails,
		e.ErrorMessage, e.DurationMs, e.ExecutedAt)
	if err != nil {
		s.logger.Errorf("Failed to record rule execution: %v", err)
		return err
	}
	return nil
}

// ListExecutions retrieves recent executions of one rule, newest first
func (s *Rules) ListExecutions(ctx context.Context, ruleID string, limit int) ([]*models.RuleExecution, error) {
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf(`
		SELECT execution_id, rule_id, status, trigger_details, execution_details,
		       error_message, duration_ms, executed_at
		FROM rule_executions
		WHERE rule_id = $1
		ORDER BY executed_at DESC
		LIMIT %d
	`, limit)

	rows, err := s.db.Pool().Query(ctx, query, ruleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var executions []*models.RuleExecution
	for rows.Next() {
		var e models.RuleExecution
		err := rows.Scan(
			&e.ExecutionID,
			&e.RuleID,
			&e.Status,
			&e.TriggerDetails,
			&e.ExecutionDetails,
			&e.ErrorMessage,
			&e.DurationMs,
			&e.ExecutedAt,
		)
		if err != nil {
			return nil, err
		}
		executions = append(executions, &e)
	}
	return executions, rows.Err()
}
