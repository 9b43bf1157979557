// Package rules evaluates declarative trigger-condition-action rules
// against record change events and runs the actions they bind.
package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/boardsync/boardsync/internal/mapping"
	"github.com/boardsync/boardsync/internal/repository"
	"github.com/boardsync/boardsync/internal/store"
	"github.com/boardsync/boardsync/internal/syncer"
	"github.com/boardsync/boardsync/pkg/logger"
	"github.com/boardsync/boardsync/pkg/models"
)

var (
	// ErrRuleDisabled is returned when a disabled rule is triggered by hand.
	ErrRuleDisabled = errors.New("rule is disabled")

	// ErrRuleNotManual is returned when a rule bound to an organic
	// trigger is fired by hand, which would bypass its trigger gate.
	ErrRuleNotManual = errors.New("rule does not accept manual triggers")
)

// EventType classifies a record change.
type EventType string

const (
	EventCreate EventType = "create"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
	EventManual EventType = "manual"
)

// Event is one record change presented to the engine.
type Event struct {
	Type     EventType              `json:"type"`
	Table    string                 `json:"table"`
	RecordID string                 `json:"record_id"`
	Record   map[string]interface{} `json:"record,omitempty"`
	Previous map[string]interface{} `json:"previous,omitempty"`
}

// RuleStore is the rule metadata surface the engine needs.
type RuleStore interface {
	Get(ctx context.Context, ruleID string) (*models.SyncRule, error)
	ListEnabledForTable(ctx context.Context, table string) ([]*models.SyncRule, error)
	MarkExecuted(ctx context.Context, ruleID string, executedAt time.Time) error
	RecordExecution(ctx context.Context, e *models.RuleExecution) error
}

// BoardSyncer runs pull and push actions.
type BoardSyncer interface {
	PullBoard(ctx context.Context, boardMappingID string, opts syncer.Options) (*syncer.PullResult, error)
	PushBoard(ctx context.Context, boardMappingID string, opts syncer.Options) (*syncer.PushResult, error)
}

// Deps carries the engine's dependencies.
type Deps struct {
	Rules         RuleStore
	Sync          BoardSyncer
	Records       store.RecordStore
	Integrations  syncer.IntegrationStore
	BoardMappings syncer.BoardMappingStore
	ItemMappings  syncer.ItemMappingStore
	NewClient     syncer.ClientFactory
	Logger        *logger.Logger
}

// Engine matches events against rules and executes matching actions in
// priority order. Rule failures are isolated; one broken rule never
// blocks the rest.
type Engine struct {
	rules         RuleStore
	sync          BoardSyncer
	records       store.RecordStore
	integrations  syncer.IntegrationStore
	boardMappings syncer.BoardMappingStore
	itemMappings  syncer.ItemMappingStore
	newClient     syncer.ClientFactory
	logger        *logger.Logger
	now           func() time.Time
}

// NewEngine creates a rules engine.
func NewEngine(deps Deps) *Engine {
	if deps.NewClient == nil {
		deps.NewClient = syncer.DefaultClientFactory
	}
	return &Engine{
		rules:         deps.Rules,
		sync:          deps.Sync,
		records:       deps.Records,
		integrations:  deps.Integrations,
		boardMappings: deps.BoardMappings,
		itemMappings:  deps.ItemMappings,
		newClient:     deps.NewClient,
		logger:        deps.Logger,
		now:           time.Now,
	}
}

// ShouldTrigger decides whether a rule fires for an event. The reason
// explains a negative decision for dry runs.
func (e *Engine) ShouldTrigger(rule *models.SyncRule, ev Event, now time.Time) (bool, string) {
	if !rule.IsEnabled {
		return false, "rule is disabled"
	}
	if rule.TriggerTable != "" && rule.TriggerTable != ev.Table {
		return false, fmt.Sprintf("table %s does not match %s", ev.Table, rule.TriggerTable)
	}
	if rule.CooldownMs > 0 && rule.LastExecuted != nil {
		cooldown := time.Duration(rule.CooldownMs) * time.Millisecond
		if now.Sub(*rule.LastExecuted) < cooldown {
			return false, "rule is cooling down"
		}
	}

	switch rule.TriggerType {
	case models.TriggerOnCreate:
		if ev.Type != EventCreate {
			return false, "not a create event"
		}
	case models.TriggerOnUpdate:
		if ev.Type != EventUpdate {
			return false, "not an update event"
		}
	case models.TriggerOnStatusChange:
		if ev.Type != EventUpdate {
			return false, "not an update event"
		}
		field := "status"
		if rule.TriggerField != nil && *rule.TriggerField != "" {
			field = *rule.TriggerField
		}
		if !EvaluateFieldCondition(ev.Record, ev.Previous, field, OpChanged, nil) {
			return false, fmt.Sprintf("field %s did not change", field)
		}
		if rule.TriggerValue != nil && *rule.TriggerValue != "" {
			if !EvaluateFieldCondition(ev.Record, ev.Previous, field, OpEq, *rule.TriggerValue) {
				return false, fmt.Sprintf("field %s is not %q", field, *rule.TriggerValue)
			}
		}
	case models.TriggerOnFieldValue:
		if rule.TriggerCondition != nil && *rule.TriggerCondition != "" {
			if !EvaluateComplexCondition(ev.Record, ev.Previous, *rule.TriggerCondition) {
				return false, "condition not satisfied"
			}
			break
		}
		if rule.TriggerField == nil || *rule.TriggerField == "" {
			return false, "rule has no trigger field"
		}
		if rule.TriggerValue != nil {
			if !EvaluateFieldCondition(ev.Record, ev.Previous, *rule.TriggerField, OpEq, *rule.TriggerValue) {
				return false, fmt.Sprintf("field %s is not %q", *rule.TriggerField, *rule.TriggerValue)
			}
		} else if !EvaluateFieldCondition(ev.Record, ev.Previous, *rule.TriggerField, OpChanged, nil) {
			return false, fmt.Sprintf("field %s did not change", *rule.TriggerField)
		}
	case models.TriggerOnCheckout:
		if ev.Table != "orders" || ev.Type != EventCreate {
			return false, "not an order checkout"
		}
	case models.TriggerOnSchedule, models.TriggerOnManualTrigger:
		// Never fired by organic record events.
		return false, fmt.Sprintf("%s rules do not react to record events", rule.TriggerType)
	default:
		return false, fmt.Sprintf("unknown trigger type %q", rule.TriggerType)
	}
	return true, ""
}

// ProcessEvent runs every matching rule for an event, lowest priority
// value first. It returns the executions it recorded.
func (e *Engine) ProcessEvent(ctx context.Context, ev Event) ([]models.RuleExecution, error) {
	matched, err := e.rules.ListEnabledForTable(ctx, ev.Table)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules for table %s: %w", ev.Table, err)
	}

	now := e.now()
	var executions []models.RuleExecution
	for _, rule := range matched {
		if err := ctx.Err(); err != nil {
			return executions, err
		}
		ok, _ := e.ShouldTrigger(rule, ev, now)
		if !ok {
			continue
		}
		executions = append(executions, e.runRule(ctx, rule, ev))
	}
	return executions, nil
}

// TriggerManually fires one onManualTrigger or onSchedule rule
// directly. Rules bound to organic triggers are rejected so their
// trigger and condition gates cannot be bypassed.
func (e *Engine) TriggerManually(ctx context.Context, ruleID string, record map[string]interface{}) (*models.RuleExecution, error) {
	rule, err := e.rules.Get(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if !rule.IsEnabled {
		return nil, ErrRuleDisabled
	}
	if rule.TriggerType != models.TriggerOnManualTrigger && rule.TriggerType != models.TriggerOnSchedule {
		return nil, ErrRuleNotManual
	}

	recordID, _ := record["_id"].(string)
	ev := Event{Type: EventManual, Table: rule.TriggerTable, RecordID: recordID, Record: record}
	exec := e.runRule(ctx, rule, ev)
	return &exec, nil
}

// TestReport is the outcome of a rule dry run.
type TestReport struct {
	WouldTrigger bool   `json:"would_trigger"`
	Reason       string `json:"reason,omitempty"`
	ActionType   string `json:"action_type"`
	ActionConfig string `json:"action_config"`
}

// TestRule evaluates a rule against a sample event without executing
// the action or recording anything.
func (e *Engine) TestRule(ctx context.Context, ruleID string, ev Event) (*TestReport, error) {
	rule, err := e.rules.Get(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	ok, reason := e.ShouldTrigger(rule, ev, e.now())
	return &TestReport{
		WouldTrigger: ok,
		Reason:       reason,
		ActionType:   string(rule.ActionType),
		ActionConfig: rule.ActionConfig,
	}, nil
}

// skippedError marks an action that deliberately made no change. The
// execution is recorded with a skipped status rather than an error.
type skippedError struct {
	detail string
}

func (e *skippedError) Error() string { return e.detail }

// runRule executes one fired rule and records the outcome. The rule's
// lastExecuted advances even on failure so cooldowns dampen retries.
func (e *Engine) runRule(ctx context.Context, rule *models.SyncRule, ev Event) models.RuleExecution {
	started := e.now()
	details, err := e.executeAction(ctx, rule, ev)

	exec := models.RuleExecution{
		ExecutionID:      uuid.New().String(),
		RuleID:           rule.RuleID,
		Status:           models.RuleExecSuccess,
		TriggerDetails:   triggerDetails(ev),
		ExecutionDetails: details,
		DurationMs:       e.now().Sub(started).Milliseconds(),
		ExecutedAt:       started,
	}
	var skip *skippedError
	if errors.As(err, &skip) {
		exec.Status = models.RuleExecSkipped
		exec.ExecutionDetails = skip.detail
	} else if err != nil {
		exec.Status = models.RuleExecError
		msg := err.Error()
		exec.ErrorMessage = &msg
		e.logf("rule %s (%s) failed: %v", rule.RuleName, rule.RuleID, err)
	}

	if err := e.rules.RecordExecution(ctx, &exec); err != nil {
		e.logf("failed to record execution of rule %s: %v", rule.RuleID, err)
	}
	if err := e.rules.MarkExecuted(ctx, rule.RuleID, started); err != nil {
		e.logf("failed to mark rule %s executed: %v", rule.RuleID, err)
	}
	return exec
}

func (e *Engine) executeAction(ctx context.Context, rule *models.SyncRule, ev Event) (string, error) {
	switch rule.ActionType {
	case models.ActionPush:
		var cfg PushActionConfig
		if err := decodeStrict(rule.ActionConfig, &cfg); err != nil {
			return "", err
		}
		res, err := e.sync.PushBoard(ctx, cfg.BoardMappingID, syncer.Options{ForceFullSync: cfg.ForceFullSync})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("pushed board mapping %s: %d created, %d updated, %d failed",
			cfg.BoardMappingID, res.ItemsCreated, res.ItemsUpdated, res.RecordsFailed), nil

	case models.ActionPull:
		var cfg PullActionConfig
		if err := decodeStrict(rule.ActionConfig, &cfg); err != nil {
			return "", err
		}
		res, err := e.sync.PullBoard(ctx, cfg.BoardMappingID, syncer.Options{ForceFullSync: cfg.ForceFullSync})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("pulled board mapping %s: %d created, %d updated, %d failed",
			cfg.BoardMappingID, res.RecordsCreated, res.RecordsUpdated, res.RecordsFailed), nil

	case models.ActionUpdateField:
		var cfg UpdateFieldActionConfig
		if err := decodeStrict(rule.ActionConfig, &cfg); err != nil {
			return "", err
		}
		if ev.RecordID == "" {
			return "", fmt.Errorf("event carries no record id")
		}
		if _, err := e.records.Patch(ctx, ev.Table, ev.RecordID, map[string]interface{}{cfg.Field: cfg.Value}); err != nil {
			return "", fmt.Errorf("failed to update field %s: %w", cfg.Field, err)
		}
		return fmt.Sprintf("set %s on %s/%s", cfg.Field, ev.Table, ev.RecordID), nil

	case models.ActionCreateRelated:
		var cfg CreateRelatedActionConfig
		if err := decodeStrict(rule.ActionConfig, &cfg); err != nil {
			return "", err
		}
		fields := make(map[string]interface{}, len(cfg.Fields)+len(cfg.CopyFields))
		for k, v := range cfg.Fields {
			mapping.SetFieldPath(fields, k, v)
		}
		for dst, src := range cfg.CopyFields {
			if v, ok := mapping.ResolveFieldPath(ev.Record, src); ok {
				mapping.SetFieldPath(fields, dst, v)
			}
		}
		doc, err := e.records.Insert(ctx, cfg.Collection, fields)
		if err != nil {
			return "", fmt.Errorf("failed to create related document: %w", err)
		}
		return fmt.Sprintf("created %s/%s", cfg.Collection, doc.ID), nil

	case models.ActionCreateItem, models.ActionUpdateItem:
		var cfg ItemActionConfig
		if err := decodeStrict(rule.ActionConfig, &cfg); err != nil {
			return "", err
		}
		return e.syncRecordToBoard(ctx, cfg.BoardMappingID, ev, rule.ActionType == models.ActionCreateItem)
	}
	return "", fmt.Errorf("unknown action type %q", rule.ActionType)
}

// syncRecordToBoard pushes a single record to one board, creating or
// updating its external item depending on the action and the existing
// identity mapping.
func (e *Engine) syncRecordToBoard(ctx context.Context, boardMappingID string, ev Event, create bool) (string, error) {
	if ev.RecordID == "" {
		return "", fmt.Errorf("event carries no record id")
	}
	bm, err := e.boardMappings.Get(ctx, boardMappingID)
	if err != nil {
		return "", fmt.Errorf("board mapping %s: %w", boardMappingID, err)
	}
	if !bm.Enabled || !bm.Direction.AllowsPush() {
		return "", fmt.Errorf("board mapping %s cannot accept pushes", boardMappingID)
	}
	if bm.Collection != ev.Table {
		return "", fmt.Errorf("board mapping %s serves collection %s, not %s", boardMappingID, bm.Collection, ev.Table)
	}
	in, err := e.integrations.Get(ctx, bm.IntegrationID)
	if err != nil {
		return "", fmt.Errorf("integration %s: %w", bm.IntegrationID, err)
	}
	columns, err := e.boardMappings.ListEnabledColumnMappings(ctx, boardMappingID)
	if err != nil {
		return "", fmt.Errorf("column mappings: %w", err)
	}

	api := e.newClient(in)
	name, colVals := mapping.LocalToExternal(ev.Record, columns)
	now := e.now()

	im, err := e.itemMappings.GetByLocal(ctx, bm.Collection, ev.RecordID)
	switch {
	case err == nil:
		if create {
			return "", &skippedError{detail: fmt.Sprintf("record %s already mapped to item %s", ev.RecordID, im.ItemID)}
		}
		if _, err := api.UpdateItem(ctx, im.ItemID, bm.BoardID, colVals); err != nil {
			return "", fmt.Errorf("failed to update item %s: %w", im.ItemID, err)
		}
		if err := e.itemMappings.Touch(ctx, im.ItemMappingID, "synced", now); err != nil {
			e.logf("failed to touch item mapping %s: %v", im.ItemMappingID, err)
		}
		return fmt.Sprintf("updated item %s on board %s", im.ItemID, bm.BoardID), nil

	case errors.Is(err, repository.ErrItemMappingNotFound):
		if !create {
			return "", fmt.Errorf("record %s has no external item", ev.RecordID)
		}
		item, err := api.CreateItem(ctx, bm.BoardID, name, colVals)
		if err != nil {
			return "", fmt.Errorf("failed to create item: %w", err)
		}
		if _, err := e.records.Patch(ctx, bm.Collection, ev.RecordID, map[string]interface{}{
			mapping.ReservedItemIDKey: item.ID,
		}); err != nil {
			e.logf("failed to store external id on document %s: %v", ev.RecordID, err)
		}
		if _, err := e.itemMappings.Create(ctx, &models.ItemMapping{
			BoardMappingID: bm.MappingID,
			BoardID:        bm.BoardID,
			ItemID:         item.ID,
			Collection:     bm.Collection,
			LocalID:        ev.RecordID,
			SyncStatus:     "synced",
			LastSyncAt:     &now,
		}); err != nil {
			return "", fmt.Errorf("failed to create item mapping: %w", err)
		}
		return fmt.Sprintf("created item %s on board %s", item.ID, bm.BoardID), nil

	default:
		return "", fmt.Errorf("item mapping lookup: %w", err)
	}
}

// AfterCreate is the hook a document write path calls after inserting.
func (e *Engine) AfterCreate(ctx context.Context, table, recordID string, record map[string]interface{}) {
	e.dispatch(ctx, Event{Type: EventCreate, Table: table, RecordID: recordID, Record: record})
}

// AfterUpdate is the hook a document write path calls after patching.
func (e *Engine) AfterUpdate(ctx context.Context, table, recordID string, record, previous map[string]interface{}) {
	e.dispatch(ctx, Event{Type: EventUpdate, Table: table, RecordID: recordID, Record: record, Previous: previous})
}

// AfterDelete is the hook a document write path calls after deleting.
func (e *Engine) AfterDelete(ctx context.Context, table, recordID string, previous map[string]interface{}) {
	e.dispatch(ctx, Event{Type: EventDelete, Table: table, RecordID: recordID, Previous: previous})
}

func (e *Engine) dispatch(ctx context.Context, ev Event) {
	if _, err := e.ProcessEvent(ctx, ev); err != nil {
		e.logf("event dispatch for %s/%s failed: %v", ev.Table, ev.RecordID, err)
	}
}

func (e *Engine) logf(format string, args ...interface{}) {
	if e.logger != nil {
		e.logger.Warnf(format, args...)
	}
}

func triggerDetails(ev Event) string {
	b, err := json.Marshal(map[string]string{
		"type":      string(ev.Type),
		"table":     ev.Table,
		"record_id": ev.RecordID,
	})
	if err != nil {
		return ""
	}
	return string(b)
}
