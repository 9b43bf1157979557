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

var ErrConflictNotFound = errors.New("conflict not found")

// Conflicts persists detected divergences and their resolutions
type Conflicts struct {
	db     *database.PostgreSQL
	logger *logger.Logger
}

// NewConflicts creates a new conflicts repository
func NewConflicts(db *database.PostgreSQL, logger *logger.Logger) *Conflicts {
	return &Conflicts{db: db, logger: logger}
}

const conflictColumns = `conflict_id, item_mapping_id, board_mapping_id, conflicting_fields,
	       external_values, local_values, last_external_update, last_local_update,
	       status, detected_at, resolved_at, resolution_strategy, resolved_by,
	       resolved_values, sync_log_id`

func scanConflict(row pgx.Row) (*models.Conflict, error) {
	var c models.Conflict
	var fields, externalValues, localValues, resolvedValues []byte
	err := row.Scan(
		&c.ConflictID,
		&c.ItemMappingID,
		&c.BoardMappingID,
		&fields,
		&externalValues,
		&localValues,
		&c.LastExternalUpdate,
		&c.LastLocalUpdate,
		&c.Status,
		&c.DetectedAt,
		&c.ResolvedAt,
		&c.ResolutionStrategy,
		&c.ResolvedBy,
		&resolvedValues,
		&c.SyncLogID,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(fields, &c.ConflictingFields); err != nil {
		return nil, fmt.Errorf("failed to decode conflicting fields: %w", err)
	}
	if err := json.Unmarshal(externalValues, &c.ExternalValues); err != nil {
		return nil, fmt.Errorf("failed to decode external values: %w", err)
	}
	if err := json.Unmarshal(localValues, &c.LocalValues); err != nil {
		return nil, fmt.Errorf("failed to decode local values: %w", err)
	}
	if len(resolvedValues) > 0 {
		if err := json.Unmarshal(resolvedValues, &c.ResolvedValues); err != nil {
			return nil, fmt.Errorf("failed to decode resolved values: %w", err)
		}
	}
	return &c, nil
}

// Create records a new detected conflict
func (s *Conflicts) Create(ctx context.Context, c *models.Conflict) (*models.Conflict, error) {
	fields, err := json.Marshal(c.ConflictingFields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode conflicting fields: %w", err)
	}
	externalValues, err := json.Marshal(c.ExternalValues)
	if err != nil {
		return nil, fmt.Errorf("failed to encode external values: %w", err)
	}
	localValues, err := json.Marshal(c.LocalValues)
	if err != nil {
		return nil, fmt.Errorf("failed to encode local values: %w", err)
	}

	query := `
		INSERT INTO conflicts (item_mapping_id, board_mapping_id, conflicting_fields,
		                       external_values, local_values, last_external_update,
		                       last_local_update, status, sync_log_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + conflictColumns

	created, err := scanConflict(s.db.Pool().QueryRow(ctx, query,
		c.ItemMappingID, c.BoardMappingID, fields, externalValues, localValues,
		c.LastExternalUpdate, c.LastLocalUpdate, models.ConflictDetected, c.SyncLogID))
	if err != nil {
		s.logger.Errorf("Failed to create conflict: %v", err)
		return nil, err
	}
	return created, nil
}

// GetConflict retrieves one conflict by ID
func (s *Conflicts) GetConflict(ctx context.Context, conflictID string) (*models.Conflict, error) {
	query := `SELECT ` + conflictColumns + ` FROM conflicts WHERE conflict_id = $1`

	c, err := scanConflict(s.db.Pool().QueryRow(ctx, query, conflictID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConflictNotFound
		}
		return nil, err
	}
	return c, nil
}

// UpdateConflict persists a resolution onto an existing conflict
func (s *Conflicts) UpdateConflict(ctx context.Context, c *models.Conflict) error {
	resolvedValues, err := json.Marshal(c.ResolvedValues)
	if err != nil {
		return fmt.Errorf("failed to encode resolved values: %w", err)
	}

	query := `
		UPDATE conflicts
		SET status = $2, resolved_at = $3, resolution_strategy = $4,
		    resolved_by = $5, resolved_values = $6
		WHERE conflict_id = $1
	`
	tag, err := s.db.Pool().Exec(ctx, query,
		c.ConflictID, c.Status, c.ResolvedAt, c.ResolutionStrategy, c.ResolvedBy, resolvedValues)
	if err != nil {
		s.logger.Errorf("Failed to update conflict: %v", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflictNotFound
	}
	return nil
}

// List retrieves conflicts, optionally filtered by board mapping and status
func (s *Conflicts) List(ctx context.Context, boardMappingID string, status models.ConflictStatus, limit int) ([]*models.Conflict, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + conflictColumns + ` FROM conflicts WHERE 1=1`
	var args []interface{}
	if boardMappingID != "" {
		args = append(args, boardMappingID)
		query += fmt.Sprintf(` AND board_mapping_id = $%d`, len(args))
	}
	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	query += fmt.Sprintf(` ORDER BY detected_at DESC LIMIT %d`, limit)

	rows, err := s.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conflicts []*models.Conflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, rows.Err()
}

// ConflictStats aggregates conflict counts per status.
type ConflictStats struct {
	Total          int `json:"total"`
	Open           int `json:"open"`
	ResolvedAuto   int `json:"resolved_auto"`
	ResolvedManual int `json:"resolved_manual"`
}

// Stats computes conflict counts, optionally per board mapping
func (s *Conflicts) Stats(ctx context.Context, boardMappingID string) (*ConflictStats, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'detected'),
		       COUNT(*) FILTER (WHERE status = 'resolved_auto'),
		       COUNT(*) FILTER (WHERE status = 'resolved_manual')
		FROM conflicts
	`
	var args []interface{}
	if boardMappingID != "" {
		query += ` WHERE board_mapping_id = $1`
		args = append(args, boardMappingID)
	}

	var stats ConflictStats
	err := s.db.Pool().QueryRow(ctx, query, args...).Scan(
		&stats.Total, &stats.Open, &stats.ResolvedAuto, &stats.ResolvedManual)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
