package repository

import (
	"context"
	"fmt"

	"github.com/boardsync/boardsync/pkg/database"
)

// schema holds the metadata tables. Trails and value snapshots are
// JSONB; identity uniqueness for item mappings is enforced in the
// database, matching the lookup-before-insert discipline in code.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS integrations (
		integration_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		integration_name TEXT NOT NULL,
		api_key TEXT NOT NULL,
		workspace_id TEXT NOT NULL DEFAULT '',
		workspace_name TEXT NOT NULL DEFAULT '',
		enabled BOOLEAN NOT NULL DEFAULT true,
		connection_status TEXT NOT NULL DEFAULT 'pending',
		last_error TEXT,
		auto_sync_interval_seconds BIGINT,
		page_size INTEGER,
		batch_size INTEGER,
		rate_limit_per_minute INTEGER,
		last_tested_at TIMESTAMPTZ,
		created TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS board_mappings (
		mapping_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		integration_id UUID NOT NULL REFERENCES integrations(integration_id),
		board_id TEXT NOT NULL,
		board_name TEXT NOT NULL DEFAULT '',
		collection TEXT NOT NULL,
		direction TEXT NOT NULL DEFAULT 'bidirectional',
		enabled BOOLEAN NOT NULL DEFAULT true,
		sync_status TEXT NOT NULL DEFAULT 'pending',
		last_sync_at TIMESTAMPTZ,
		parent_mapping_id UUID REFERENCES board_mappings(mapping_id),
		conflict_policy TEXT NOT NULL DEFAULT 'latest_wins',
		created TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS board_mappings_board_collection
		ON board_mappings (board_id, collection) WHERE enabled`,
	`CREATE TABLE IF NOT EXISTS column_mappings (
		column_mapping_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		board_mapping_id UUID NOT NULL REFERENCES board_mappings(mapping_id) ON DELETE CASCADE,
		column_id TEXT NOT NULL,
		column_title TEXT NOT NULL DEFAULT '',
		column_type TEXT NOT NULL,
		field_path TEXT NOT NULL,
		field_type TEXT NOT NULL DEFAULT 'text',
		is_required BOOLEAN NOT NULL DEFAULT false,
		is_primary_key BOOLEAN NOT NULL DEFAULT false,
		is_enabled BOOLEAN NOT NULL DEFAULT true,
		default_value TEXT,
		created TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS item_mappings (
		item_mapping_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		board_mapping_id UUID NOT NULL REFERENCES board_mappings(mapping_id) ON DELETE CASCADE,
		board_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		collection TEXT NOT NULL,
		local_id TEXT NOT NULL,
		sync_status TEXT NOT NULL DEFAULT 'synced',
		last_sync_at TIMESTAMPTZ,
		is_subitem BOOLEAN NOT NULL DEFAULT false,
		parent_item_id TEXT,
		created TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (board_id, item_id),
		UNIQUE (collection, local_id)
	)`,
	`CREATE TABLE IF NOT EXISTS sync_logs (
		sync_log_id UUID PRIMARY KEY,
		integration_id UUID NOT NULL,
		board_mapping_id UUID,
		operation TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'running',
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ,
		records_processed INTEGER NOT NULL DEFAULT 0,
		records_created INTEGER NOT NULL DEFAULT 0,
		records_updated INTEGER NOT NULL DEFAULT 0,
		records_failed INTEGER NOT NULL DEFAULT 0,
		messages JSONB NOT NULL DEFAULT '[]',
		errors JSONB NOT NULL DEFAULT '[]',
		phases JSONB NOT NULL DEFAULT '[]',
		metrics JSONB NOT NULL DEFAULT '[]'
	)`,
	`CREATE INDEX IF NOT EXISTS sync_logs_integration ON sync_logs (integration_id, started_at DESC)`,
	`CREATE TABLE IF NOT EXISTS conflicts (
		conflict_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		item_mapping_id UUID NOT NULL,
		board_mapping_id UUID NOT NULL,
		conflicting_fields JSONB NOT NULL DEFAULT '[]',
		external_values JSONB NOT NULL DEFAULT '{}',
		local_values JSONB NOT NULL DEFAULT '{}',
		last_external_update TIMESTAMPTZ NOT NULL,
		last_local_update TIMESTAMPTZ NOT NULL,
		status TEXT NOT NULL DEFAULT 'detected',
		detected_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		resolved_at TIMESTAMPTZ,
		resolution_strategy TEXT,
		resolved_by TEXT,
		resolved_values JSONB,
		sync_log_id UUID
	)`,
	`CREATE INDEX IF NOT EXISTS conflicts_open ON conflicts (board_mapping_id) WHERE status = 'detected'`,
	`CREATE TABLE IF NOT EXISTS sync_rules (
		rule_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		rule_name TEXT NOT NULL,
		integration_id UUID NOT NULL REFERENCES integrations(integration_id),
		board_mapping_id UUID REFERENCES board_mappings(mapping_id),
		is_enabled BOOLEAN NOT NULL DEFAULT true,
		trigger_type TEXT NOT NULL,
		trigger_table TEXT NOT NULL,
		trigger_field TEXT,
		trigger_value TEXT,
		trigger_condition TEXT,
		action_type TEXT NOT NULL,
		action_config TEXT NOT NULL DEFAULT '{}',
		priority INTEGER NOT NULL DEFAULT 100,
		cooldown_ms BIGINT NOT NULL DEFAULT 0,
		last_executed TIMESTAMPTZ,
		execution_count BIGINT NOT NULL DEFAULT 0,
		created TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS rule_executions (
		execution_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		rule_id UUID NOT NULL REFERENCES sync_rules(rule_id) ON DELETE CASCADE,
		status TEXT NOT NULL,
		trigger_details TEXT NOT NULL DEFAULT '{}',
		execution_details TEXT NOT NULL DEFAULT '{}',
		error_message TEXT,
		duration_ms BIGINT NOT NULL DEFAULT 0,
		executed_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		document_id UUID NOT NULL DEFAULT gen_random_uuid(),
		fields JSONB NOT NULL DEFAULT '{}',
		created TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (collection, document_id)
	)`,
	`CREATE INDEX IF NOT EXISTS documents_updated ON documents (collection, updated)`,
}

// Migrate applies the schema statements in order.
func Migrate(ctx context.Context, db *database.PostgreSQL) error {
	for _, stmt := range schema {
		if _, err := db.Pool().Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
