package models

import (
	"time"
)

// SyncDirection constrains which orchestrator paths a board mapping may run.
type SyncDirection string

const (
	DirectionPush          SyncDirection = "push"
	DirectionPull          SyncDirection = "pull"
	DirectionBidirectional SyncDirection = "bidirectional"
)

// AllowsPull reports whether a pull run is permitted for this direction.
func (d SyncDirection) AllowsPull() bool {
	return d == DirectionPull || d == DirectionBidirectional
}

// AllowsPush reports whether a push run is permitted for this direction.
func (d SyncDirection) AllowsPush() bool {
	return d == DirectionPush || d == DirectionBidirectional
}

// BoardSyncStatus is the last known outcome for a board mapping.
type BoardSyncStatus string

const (
	BoardStatusPending BoardSyncStatus = "pending"
	BoardStatusSyncing BoardSyncStatus = "syncing"
	BoardStatusSynced  BoardSyncStatus = "synced"
	BoardStatusPartial BoardSyncStatus = "partial"
	BoardStatusError   BoardSyncStatus = "error"
)

// ConflictStatus tracks the lifecycle of a detected conflict.
type ConflictStatus string

const (
	ConflictDetected       ConflictStatus = "detected"
	ConflictResolvedAuto   ConflictStatus = "resolved_auto"
	ConflictResolvedManual ConflictStatus = "resolved_manual"
	ConflictUnresolved     ConflictStatus = "unresolved"
)

// Resolved reports whether the conflict reached a terminal state.
func (s ConflictStatus) Resolved() bool {
	return s == ConflictResolvedAuto || s == ConflictResolvedManual
}

// ResolutionStrategy selects how a conflict's values are reconciled.
type ResolutionStrategy string

const (
	StrategyLatestWins   ResolutionStrategy = "latest_wins"
	StrategyExternalWins ResolutionStrategy = "external_wins"
	StrategyLocalWins    ResolutionStrategy = "local_wins"
	StrategyManual       ResolutionStrategy = "manual"
)

// SyncLogStatus is the final status of a sync run.
type SyncLogStatus string

const (
	SyncLogRunning    SyncLogStatus = "running"
	SyncLogCompleted  SyncLogStatus = "completed"
	SyncLogWithErrors SyncLogStatus = "completed_with_errors"
	SyncLogFailed     SyncLogStatus = "failed"
)

// Integration represents one external board account binding
type Integration struct {
	IntegrationID    string     `json:"integration_id" db:"integration_id"`
	IntegrationName  string     `json:"integration_name" db:"integration_name"`
	APIKey           string     `json:"-" db:"api_key"`
	WorkspaceID      string     `json:"workspace_id" db:"workspace_id"`
	WorkspaceName    string     `json:"workspace_name" db:"workspace_name"`
	Enabled          bool       `json:"enabled" db:"enabled"`
	ConnectionStatus string     `json:"connection_status" db:"connection_status"`
	LastError        *string    `json:"last_error,omitempty" db:"last_error"`
	AutoSyncInterval *int64     `json:"auto_sync_interval_seconds,omitempty" db:"auto_sync_interval_seconds"`
	PageSize         *int       `json:"page_size,omitempty" db:"page_size"`
	BatchSize        *int       `json:"batch_size,omitempty" db:"batch_size"`
	RateLimitPerMin  *int       `json:"rate_limit_per_minute,omitempty" db:"rate_limit_per_minute"`
	LastTestedAt     *time.Time `json:"last_tested_at,omitempty" db:"last_tested_at"`
	Created          time.Time  `json:"created" db:"created"`
	Updated          time.Time  `json:"updated" db:"updated"`
}

// EffectivePageSize returns the tuned page size or the given default.
func (i *Integration) EffectivePageSize(fallback int) int {
	if i.PageSize != nil && *i.PageSize > 0 {
		return *i.PageSize
	}
	return fallback
}

// BoardMapping binds one local collection to one external board
type BoardMapping struct {
	MappingID       string             `json:"mapping_id" db:"mapping_id"`
	IntegrationID   string             `json:"integration_id" db:"integration_id"`
	BoardID         string             `json:"board_id" db:"board_id"`
	BoardName       string             `json:"board_name" db:"board_name"`
	Collection      string             `json:"collection" db:"collection"`
	Direction       SyncDirection      `json:"direction" db:"direction"`
	Enabled         bool               `json:"enabled" db:"enabled"`
	SyncStatus      BoardSyncStatus    `json:"sync_status" db:"sync_status"`
	LastSyncAt      *time.Time         `json:"last_sync_at,omitempty" db:"last_sync_at"`
	ParentMappingID *string            `json:"parent_mapping_id,omitempty" db:"parent_mapping_id"`
	ConflictPolicy  ResolutionStrategy `json:"conflict_policy" db:"conflict_policy"`
	Created         time.Time          `json:"created" db:"created"`
	Updated         time.Time          `json:"updated" db:"updated"`
}

// ColumnMapping binds one local field to one external column
type ColumnMapping struct {
	ColumnMappingID string    `json:"column_mapping_id" db:"column_mapping_id"`
	BoardMappingID  string    `json:"board_mapping_id" db:"board_mapping_id"`
	ColumnID        string    `json:"column_id" db:"column_id"`
	ColumnTitle     string    `json:"column_title" db:"column_title"`
	ColumnType      string    `json:"column_type" db:"column_type"`
	FieldPath       string    `json:"field_path" db:"field_path"`
	FieldType       string    `json:"field_type" db:"field_type"`
	IsRequired      bool      `json:"is_required" db:"is_required"`
	IsPrimaryKey    bool      `json:"is_primary_key" db:"is_primary_key"`
	IsEnabled       bool      `json:"is_enabled" db:"is_enabled"`
	DefaultValue    *string   `json:"default_value,omitempty" db:"default_value"`
	Created         time.Time `json:"created" db:"created"`
}

// ItemMapping is the identity bridge between one local document and one
// external item. Lookups always precede inserts so a pair is never
// silently duplicated.
type ItemMapping struct {
	ItemMappingID  string     `json:"item_mapping_id" db:"item_mapping_id"`
	BoardMappingID string     `json:"board_mapping_id" db:"board_mapping_id"`
	BoardID        string     `json:"board_id" db:"board_id"`
	ItemID         string     `json:"item_id" db:"item_id"`
	Collection     string     `json:"collection" db:"collection"`
	LocalID        string     `json:"local_id" db:"local_id"`
	SyncStatus     string     `json:"sync_status" db:"sync_status"`
	LastSyncAt     *time.Time `json:"last_sync_at,omitempty" db:"last_sync_at"`
	IsSubitem      bool       `json:"is_subitem" db:"is_subitem"`
	ParentItemID   *string    `json:"parent_item_id,omitempty" db:"parent_item_id"`
	Created        time.Time  `json:"created" db:"created"`
	Updated        time.Time  `json:"updated" db:"updated"`
}

// TrailEntry is one timestamped message in a sync log trail.
type TrailEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// PhaseEntry records one orchestrator phase with its duration.
type PhaseEntry struct {
	Name      string     `json:"name"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// MetricEntry is one named measurement captured during a run.
type MetricEntry struct {
	Time  time.Time `json:"time"`
	Name  string    `json:"name"`
	Value float64   `json:"value"`
}

// SyncLog is the audit record of one synchronization run
type SyncLog struct {
	SyncLogID      string        `json:"sync_log_id" db:"sync_log_id"`
	IntegrationID  string        `json:"integration_id" db:"integration_id"`
	BoardMappingID *string       `json:"board_mapping_id,omitempty" db:"board_mapping_id"`
	Operation      string        `json:"operation" db:"operation"`
	Status         SyncLogStatus `json:"status" db:"status"`
	StartedAt      time.Time     `json:"started_at" db:"started_at"`
	EndedAt        *time.Time    `json:"ended_at,omitempty" db:"ended_at"`
	Processed      int           `json:"records_processed" db:"records_processed"`
	Created        int           `json:"records_created" db:"records_created"`
	Updated        int           `json:"records_updated" db:"records_updated"`
	Failed         int           `json:"records_failed" db:"records_failed"`
	Messages       []TrailEntry  `json:"messages" db:"messages"`
	Errors         []TrailEntry  `json:"errors" db:"errors"`
	Phases         []PhaseEntry  `json:"phases" db:"phases"`
	Metrics        []MetricEntry `json:"metrics" db:"metrics"`
}

// SuccessRate returns the fraction of processed records that did not fail.
func (l *SyncLog) SuccessRate() float64 {
	if l.Processed == 0 {
		return 1.0
	}
	return float64(l.Processed-l.Failed) / float64(l.Processed)
}

// Throughput returns processed records per second over the run duration.
func (l *SyncLog) Throughput() float64 {
	if l.EndedAt == nil {
		return 0
	}
	elapsed := l.EndedAt.Sub(l.StartedAt).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(l.Processed) / elapsed
}

// Conflict records one field-set divergence between both sides of an
// item mapping. Terminal once resolved; re-detection creates a new record.
type Conflict struct {
	ConflictID         string                 `json:"conflict_id" db:"conflict_id"`
	ItemMappingID      string                 `json:"item_mapping_id" db:"item_mapping_id"`
	BoardMappingID     string                 `json:"board_mapping_id" db:"board_mapping_id"`
	ConflictingFields  []string               `json:"conflicting_fields" db:"conflicting_fields"`
	ExternalValues     map[string]interface{} `json:"external_values" db:"external_values"`
	LocalValues        map[string]interface{} `json:"local_values" db:"local_values"`
	LastExternalUpdate time.Time              `json:"last_external_update" db:"last_external_update"`
	LastLocalUpdate    time.Time              `json:"last_local_update" db:"last_local_update"`
	Status             ConflictStatus         `json:"status" db:"status"`
	DetectedAt         time.Time              `json:"detected_at" db:"detected_at"`
	ResolvedAt         *time.Time             `json:"resolved_at,omitempty" db:"resolved_at"`
	ResolutionStrategy *ResolutionStrategy    `json:"resolution_strategy,omitempty" db:"resolution_strategy"`
	ResolvedBy         *string                `json:"resolved_by,omitempty" db:"resolved_by"`
	ResolvedValues     map[string]interface{} `json:"resolved_values,omitempty" db:"resolved_values"`
	SyncLogID          *string                `json:"sync_log_id,omitempty" db:"sync_log_id"`
}

// TriggerType selects which record-change events a rule reacts to.
type TriggerType string

const (
	TriggerOnCreate        TriggerType = "onCreate"
	TriggerOnUpdate        TriggerType = "onUpdate"
	TriggerOnStatusChange  TriggerType = "onStatusChange"
	TriggerOnFieldValue    TriggerType = "onFieldValue"
	TriggerOnCheckout      TriggerType = "onCheckout"
	TriggerOnSchedule      TriggerType = "onSchedule"
	TriggerOnManualTrigger TriggerType = "onManualTrigger"
)

// ActionType selects what a fired rule does.
type ActionType string

const (
	ActionPush          ActionType = "push"
	ActionPull          ActionType = "pull"
	ActionUpdateField   ActionType = "updateField"
	ActionCreateItem    ActionType = "createItem"
	ActionUpdateItem    ActionType = "updateItem"
	ActionCreateRelated ActionType = "createRelated"
)

// SyncRule is a declarative trigger-condition-action binding
type SyncRule struct {
	RuleID           string      `json:"rule_id" db:"rule_id"`
	RuleName         string      `json:"rule_name" db:"rule_name"`
	IntegrationID    string      `json:"integration_id" db:"integration_id"`
	BoardMappingID   *string     `json:"board_mapping_id,omitempty" db:"board_mapping_id"`
	IsEnabled        bool        `json:"is_enabled" db:"is_enabled"`
	TriggerType      TriggerType `json:"trigger_type" db:"trigger_type"`
	TriggerTable     string      `json:"trigger_table" db:"trigger_table"`
	TriggerField     *string     `json:"trigger_field,omitempty" db:"trigger_field"`
	TriggerValue     *string     `json:"trigger_value,omitempty" db:"trigger_value"`
	TriggerCondition *string     `json:"trigger_condition,omitempty" db:"trigger_condition"`
	ActionType       ActionType  `json:"action_type" db:"action_type"`
	ActionConfig     string      `json:"action_config" db:"action_config"`
	Priority         int         `json:"priority" db:"priority"`
	CooldownMs       int64       `json:"cooldown_ms" db:"cooldown_ms"`
	LastExecuted     *time.Time  `json:"last_executed,omitempty" db:"last_executed"`
	ExecutionCount   int64       `json:"execution_count" db:"execution_count"`
	Created          time.Time   `json:"created" db:"created"`
	Updated          time.Time   `json:"updated" db:"updated"`
}

// RuleExecutionStatus is the outcome of one rule firing.
type RuleExecutionStatus string

const (
	RuleExecSuccess RuleExecutionStatus = "success"
	RuleExecError   RuleExecutionStatus = "error"
	RuleExecSkipped RuleExecutionStatus = "skipped"
)

// RuleExecution is the append-only audit record of one rule firing
type RuleExecution struct {
	ExecutionID      string              `json:"execution_id" db:"execution_id"`
	RuleID           string              `json:"rule_id" db:"rule_id"`
	Status           RuleExecutionStatus `json:"status" db:"status"`
	TriggerDetails   string              `json:"trigger_details" db:"trigger_details"`
	ExecutionDetails string              `json:"execution_details" db:"execution_details"`
	ErrorMessage     *string             `json:"error_message,omitempty" db:"error_message"`
	DurationMs       int64               `json:"duration_ms" db:"duration_ms"`
	ExecutedAt       time.Time           `json:"executed_at" db:"executed_at"`
}
