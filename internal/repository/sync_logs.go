package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/boardsync/boardsync/pkg/database"
	"github.com/boardsync/boardsync/pkg/logger"
	"github.com/boardsync/boardsync/pkg/models"
)

var ErrSyncLogNotFound = errors.New("sync log not found")

// SyncLogs persists sync run audit records. Trails are serialized to
// JSONB at this boundary only.
type SyncLogs struct {
	db     *database.PostgreSQL
	logger *logger.Logger
}

// NewSyncLogs creates a new sync logs repository
func NewSyncLogs(db *database.PostgreSQL, logger *logger.Logger) *SyncLogs {
	return &SyncLogs{db: db, logger: logger}
}

func marshalTrail(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode trail: %w", err)
	}
	if string(data) == "null" {
		data = []byte("[]")
	}
	return data, nil
}

// CreateSyncLog inserts the initial running record
func (s *SyncLogs) CreateSyncLog(ctx context.Context, log *models.SyncLog) error {
	messages, err := marshalTrail(log.Messages)
	if err != nil {
		return err
	}
	errTrail, err := marshalTrail(log.Errors)
	if err != nil {
		return err
	}
	phases, err := marshalTrail(log.Phases)
	if err != nil {
		return err
	}
	metrics, err := marshalTrail(log.Metrics)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO sync_logs (sync_log_id, integration_id, board_mapping_id, operation, status,
		                       started_at, records_processed, records_created, records_updated,
		                       records_failed, messages, errors, phases, metrics)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = s.db.Pool().Exec(ctx, query,
		log.SyncLogID, log.IntegrationID, log.BoardMappingID, log.Operation, log.Status,
		log.StartedAt, log.Processed, log.Created, log.Updated,
		log.Failed, messages, errTrail, phases, metrics)
	if err != nil {
		s.logger.Errorf("Failed to create sync log: %v", err)
		return err
	}
	return nil
}

// UpdateSyncLog overwrites the mutable run state
func (s *SyncLogs) UpdateSyncLog(ctx context.Context, log *models.SyncLog) error {
	messages, err := marshalTrail(log.Messages)
	if err != nil {
		return err
	}
	errTrail, err := marshalTrail(log.Errors)
	if err != nil {
		return err
	}
	phases, err := marshalTrail(log.Phases)
	if err != nil {
		return err
	}
	metrics, err := marshalTrail(log.Metrics)
	if err != nil {
		return err
	}

	query := `
		UPDATE sync_logs
		SET status = $2, ended_at = $3, records_processed = $4, records_created = $5,
		    records_updated = $6, records_failed = $7, messages = $8, errors = $9,
		    phases = $10, metrics = $11
		WHERE sync_log_id = $1
	`
	_, err = s.db.Pool().Exec(ctx, query,
		log.SyncLogID, log.Status, log.EndedAt, log.Processed, log.Created,
		log.Updated, log.Failed, messages, errTrail, phases, metrics)
	if err != nil {
		s.logger.Errorf("Failed to update sync log: %v", err)
		return err
	}
	return nil
}

const syncLogColumns = `sync_log_id, integration_id, board_mapping_id, operation, status, started_at,
	       ended_at, records_processed, records_created, records_updated, records_failed,
	       messages, errors, phases, metrics`

func scanSyncLog(row pgx.Row) (*models.SyncLog, error) {
	var log models.SyncLog
	var messages, errTrail, phases, metrics []byte
	err := row.Scan(
		&log.SyncLogID,
		&log.IntegrationID,
		&log.BoardMappingID,
		&log.Operation,
		&log.Status,
		&log.StartedAt,
		&log.EndedAt,
		&log.Processed,
		&log.Created,
		&log.Updated,
		&log.Failed,
		&messages,
		&errTrail,
		&phases,
		&metrics,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(messages, &log.Messages); err != nil {
		return nil, fmt.Errorf("failed to decode message trail: %w", err)
	}
	if err := json.Unmarshal(errTrail, &log.Errors); err != nil {
		return nil, fmt.Errorf("failed to decode error trail: %w", err)
	}
	if err := json.Unmarshal(phases, &log.Phases); err != nil {
		return nil, fmt.Errorf("failed to decode phase trail: %w", err)
	}
	if err := json.Unmarshal(metrics, &log.Metrics); err != nil {
		return nil, fmt.Errorf("failed to decode metric trail: %w", err)
	}
	return &log, nil
}

// Get retrieves one sync log by ID
func (s *SyncLogs) Get(ctx context.Context, syncLogID string) (*models.SyncLog, error) {
	query := `SELECT ` + syncLogColumns + ` FROM sync_logs WHERE sync_log_id = $1`

	log, err := scanSyncLog(s.db.Pool().QueryRow(ctx, query, syncLogID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSyncLogNotFound
		}
		return nil, err
	}
	return log, nil
}

// List retrieves recent sync logs, newest first, optionally scoped to
// one board mapping.
func (s *SyncLogs) List(ctx context.Context, integrationID, boardMappingID string, limit int) ([]*models.SyncLog, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + syncLogColumns + ` FROM sync_logs WHERE integration_id = $1`
	args := []interface{}{integrationID}
	if boardMappingID != "" {
		query += ` AND board_mapping_id = $2`
		args = append(args, boardMappingID)
	}
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT %d`, limit)

	rows, err := s.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*models.SyncLog
	for rows.Next() {
		log, err := scanSyncLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

// Summary aggregates run history for one integration.
type Summary struct {
	TotalRuns         int     `json:"total_runs"`
	CompletedRuns     int     `json:"completed_runs"`
	FailedRuns        int     `json:"failed_runs"`
	RecordsProcessed  int     `json:"records_processed"`
	RecordsFailed     int     `json:"records_failed"`
	AvgDurationSecs   float64 `json:"avg_duration_seconds"`
	OverallSuccessPct float64 `json:"overall_success_pct"`
}

// Summarize computes aggregate run statistics for one integration
func (s *SyncLogs) Summarize(ctx context.Context, integrationID string) (*Summary, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'completed'),
		       COUNT(*) FILTER (WHERE status = 'failed'),
		       COALESCE(SUM(records_processed), 0),
		       COALESCE(SUM(records_failed), 0),
		       COALESCE(AVG(EXTRACT(EPOCH FROM (ended_at - started_at))), 0)
		FROM sync_logs
		WHERE integration_id = $1
	`

	var sum Summary
	err := s.db.Pool().QueryRow(ctx, query, integrationID).Scan(
		&sum.TotalRuns,
		&sum.CompletedRuns,
		&sum.FailedRuns,
		&sum.RecordsProcessed,
		&sum.RecordsFailed,
		&sum.AvgDurationSecs,
	)
	if err != nil {
		return nil, err
	}
	if sum.RecordsProcessed > 0 {
		sum.OverallSuccessPct = 100 * float64(sum.RecordsProcessed-sum.RecordsFailed) / float64(sum.RecordsProcessed)
	} else {
		sum.OverallSuccessPct = 100
	}
	return &sum, nil
}
