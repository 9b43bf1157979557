package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/boardsync/boardsync/pkg/database"
	"github.com/boardsync/boardsync/pkg/logger"
	"github.com/boardsync/boardsync/pkg/models"
)

var (
	ErrBoardMappingNotFound  = errors.New("board mapping not found")
	ErrColumnMappingNotFound = errors.New("column mapping not found")
)

// BoardMappings handles board and column mapping persistence
type BoardMappings struct {
	db     *database.PostgreSQL
	logger *logger.Logger
}

// NewBoardMappings creates a new board mappings repository
func NewBoardMappings(db *database.PostgreSQL, logger *logger.Logger) *BoardMappings {
	return &BoardMappings{db: db, logger: logger}
}

const boardMappingColumns = `mapping_id, integration_id, board_id, board_name, collection, direction,
	       enabled, sync_status, last_sync_at, parent_mapping_id, conflict_policy, created, updated`

func scanBoardMapping(row pgx.Row) (*models.BoardMapping, error) {
	var bm models.BoardMapping
	err := row.Scan(
		&bm.MappingID,
		&bm.IntegrationID,
		&bm.BoardID,
		&bm.BoardName,
		&bm.Collection,
		&bm.Direction,
		&bm.Enabled,
		&bm.SyncStatus,
		&bm.LastSyncAt,
		&bm.ParentMappingID,
		&bm.ConflictPolicy,
		&bm.Created,
		&bm.Updated,
	)
	if err != nil {
		return nil, err
	}
	return &bm, nil
}

// Create creates a new board mapping
func (s *BoardMappings) Create(ctx context.Context, bm *models.BoardMapping) (*models.BoardMapping, error) {
	s.logger.Infof("Creating board mapping: board %s to collection %s", bm.BoardID, bm.Collection)

	query := `
		INSERT INTO board_mappings (integration_id, board_id, board_name, collection, direction,
		                            enabled, sync_status, parent_mapping_id, conflict_policy)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + boardMappingColumns

	created, err := scanBoardMapping(s.db.Pool().QueryRow(ctx, query,
		bm.IntegrationID, bm.BoardID, bm.BoardName, bm.Collection, bm.Direction,
		bm.Enabled, models.BoardStatusPending, bm.ParentMappingID, bm.ConflictPolicy))
	if err != nil {
		s.logger.Errorf("Failed to create board mapping: %v", err)
		return nil, err
	}
	return created, nil
}

// Get retrieves a board mapping by ID
func (s *BoardMappings) Get(ctx context.Context, mappingID string) (*models.BoardMapping, error) {
	query := `SELECT ` + boardMappingColumns + ` FROM board_mappings WHERE mapping_id = $1`

	bm, err := scanBoardMapping(s.db.Pool().QueryRow(ctx, query, mappingID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBoardMappingNotFound
		}
		s.logger.Errorf("Failed to get board mapping: %v", err)
		return nil, err
	}
	return bm, nil
}

// List retrieves board mappings, optionally filtered by integration
func (s *BoardMappings) List(ctx context.Context, integrationID string) ([]*models.BoardMapping, error) {
	query := `SELECT ` + boardMappingColumns + ` FROM board_mappings`
	var args []interface{}
	if integrationID != "" {
		query += ` WHERE integration_id = $1`
		args = append(args, integrationID)
	}
	query += ` ORDER BY board_name, collection`

	rows, err := s.db.Pool().Query(ctx, query, args...)
	if err != nil {
		s.logger.Errorf("Failed to list board mappings: %v", err)
		return nil, err
	}
	defer rows.Close()

	var mappings []*models.BoardMapping
	for rows.Next() {
		bm, err := scanBoardMapping(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, bm)
	}
	return mappings, rows.Err()
}

// ListEnabled retrieves the enabled board mappings of one integration
func (s *BoardMappings) ListEnabled(ctx context.Context, integrationID string) ([]*models.BoardMapping, error) {
	query := `SELECT ` + boardMappingColumns + ` FROM board_mappings
		WHERE integration_id = $1 AND enabled ORDER BY board_name`

	rows, err := s.db.Pool().Query(ctx, query, integrationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mappings []*models.BoardMapping
	for rows.Next() {
		bm, err := scanBoardMapping(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, bm)
	}
	return mappings, rows.Err()
}

// Update modifies a board mapping's configuration
func (s *BoardMappings) Update(ctx context.Context, bm *models.BoardMapping) (*models.BoardMapping, error) {
	query := `
		UPDATE board_mappings
		SET board_name = $2, collection = $3, direction = $4, enabled = $5,
		    conflict_policy = $6, parent_mapping_id = $7, updated = now()
		WHERE mapping_id = $1
		RETURNING ` + boardMappingColumns

	updated, err := scanBoardMapping(s.db.Pool().QueryRow(ctx, query,
		bm.MappingID, bm.BoardName, bm.Collection, bm.Direction, bm.Enabled,
		bm.ConflictPolicy, bm.ParentMappingID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBoardMappingNotFound
		}
		return nil, err
	}
	return updated, nil
}

// SetSyncOutcome stamps the sync status and, for successful runs, the
// last-sync timestamp of one board mapping.
func (s *BoardMappings) SetSyncOutcome(ctx context.Context, mappingID string, status models.BoardSyncStatus, syncedAt *time.Time) error {
	query := `
		UPDATE board_mappings
		SET sync_status = $2, last_sync_at = COALESCE($3, last_sync_at), updated = now()
		WHERE mapping_id = $1
	`
	tag, err := s.db.Pool().Exec(ctx, query, mappingID, status, syncedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBoardMappingNotFound
	}
	return nil
}

// Delete removes a board mapping and its column and item mappings
func (s *BoardMappings) Delete(ctx context.Context, mappingID string) error {
	tag, err := s.db.Pool().Exec(ctx, `DELETE FROM board_mappings WHERE mapping_id = $1`, mappingID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBoardMappingNotFound
	}
	return nil
}

const columnMappingColumns = `column_mapping_id, board_mapping_id, column_id, column_title, column_type,
	       field_path, field_type, is_required, is_primary_key, is_enabled, default_value, created`

func scanColumnMapping(row pgx.Row) (*models.ColumnMapping, error) {
	var cm models.ColumnMapping
	err := row.Scan(
		&cm.ColumnMappingID,
		&cm.BoardMappingID,
		&cm.ColumnID,
		&cm.ColumnTitle,
		&cm.ColumnType,
		&cm.FieldPath,
		&cm.FieldType,
		&cm.IsRequired,
		&cm.IsPrimaryKey,
		&cm.IsEnabled,
		&cm.DefaultValue,
		&cm.Created,
	)
	if err != nil {
		return nil, err
	}
	return &cm, nil
}

// CreateColumnMapping adds one column mapping under a board mapping
func (s *BoardMappings) CreateColumnMapping(ctx context.Context, cm *models.ColumnMapping) (*models.ColumnMapping, error) {
	query := `
		INSERT INTO column_mappings (board_mapping_id, column_id, column_title, column_type,
		                             field_path, field_type, is_required, is_primary_key,
		                             is_enabled, default_value)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + columnMappingColumns

	created, err := scanColumnMapping(s.db.Pool().QueryRow(ctx, query,
		cm.BoardMappingID, cm.ColumnID, cm.ColumnTitle, cm.ColumnType,
		cm.FieldPath, cm.FieldType, cm.IsRequired, cm.IsPrimaryKey,
		cm.IsEnabled, cm.DefaultValue))
	if err != nil {
		s.logger.Errorf("Failed to create column mapping: %v", err)
		return nil, err
	}
	return created, nil
}

// ListColumnMappings returns all column mappings of one board mapping
func (s *BoardMappings) ListColumnMappings(ctx context.Context, boardMappingID string) ([]models.ColumnMapping, error) {
	query := `SELECT ` + columnMappingColumns + ` FROM column_mappings
		WHERE board_mapping_id = $1 ORDER BY column_title`

	rows, err := s.db.Pool().Query(ctx, query, boardMappingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mappings []models.ColumnMapping
	for rows.Next() {
		cm, err := scanColumnMapping(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, *cm)
	}
	return mappings, rows.Err()
}

// ListEnabledColumnMappings returns only the enabled column mappings
func (s *BoardMappings) ListEnabledColumnMappings(ctx context.Context, boardMappingID string) ([]models.ColumnMapping, error) {
	query := `SELECT ` + columnMappingColumns + ` FROM column_mappings
		WHERE board_mapping_id = $1 AND is_enabled ORDER BY column_title`

	rows, err := s.db.Pool().Query(ctx, query, boardMappingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mappings []models.ColumnMapping
	for rows.Next() {
		cm, err := scanColumnMapping(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, *cm)
	}
	return mappings, rows.Err()
}

// UpdateColumnMapping modifies one column mapping
func (s *BoardMappings) UpdateColumnMapping(ctx context.Context, cm *models.ColumnMapping) (*models.ColumnMapping, error) {
	query := `
		UPDATE column_mappings
		SET column_id = $2, column_title = $3, column_type = $4, field_path = $5,
		    field_type = $6, is_required = $7, is_primary_key = $8, is_enabled = $9,
		    default_value = $10
		WHERE column_mapping_id = $1
		RETURNING ` + columnMappingColumns

	updated, err := scanColumnMapping(s.db.Pool().QueryRow(ctx, query,
		cm.ColumnMappingID, cm.ColumnID, cm.ColumnTitle, cm.ColumnType, cm.FieldPath,
		cm.FieldType, cm.IsRequired, cm.IsPrimaryKey, cm.IsEnabled, cm.DefaultValue))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrColumnMappingNotFound
		}
		return nil, err
	}
	return updated, nil
}

// DeleteColumnMapping removes one column mapping
func (s *BoardMappings) DeleteColumnMapping(ctx context.Context, columnMappingID string) error {
	tag, err := s.db.Pool().Exec(ctx,
		`DELETE FROM column_mappings WHERE column_mapping_id = $1`, columnMappingID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrColumnMappingNotFound
	}
	return nil
}
