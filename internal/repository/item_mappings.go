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

var ErrItemMappingNotFound = errors.New("item mapping not found")

// ItemMappings handles the identity bridge between local documents and
// external items. Uniqueness per (board, item) and per (collection,
// local id) is enforced by the schema; callers look up before inserting.
type ItemMappings struct {
	db     *database.PostgreSQL
	logger *logger.Logger
}

// NewItemMappings creates a new item mappings repository
func NewItemMappings(db *database.PostgreSQL, logger *logger.Logger) *ItemMappings {
	return &ItemMappings{db: db, logger: logger}
}

const itemMappingColumns = `item_mapping_id, board_mapping_id, board_id, item_id, collection, local_id,
	       sync_status, last_sync_at, is_subitem, parent_item_id, created, updated`

func scanItemMapping(row pgx.Row) (*models.ItemMapping, error) {
	var im models.ItemMapping
	err := row.Scan(
		&im.ItemMappingID,
		&im.BoardMappingID,
		&im.BoardID,
		&im.ItemID,
		&im.Collection,
		&im.LocalID,
		&im.SyncStatus,
		&im.LastSyncAt,
		&im.IsSubitem,
		&im.ParentItemID,
		&im.Created,
		&im.Updated,
	)
	if err != nil {
		return nil, err
	}
	return &im, nil
}

// Create inserts a new identity pair
func (s *ItemMappings) Create(ctx context.Context, im *models.ItemMapping) (*models.ItemMapping, error) {
	query := `
		INSERT INTO item_mappings (board_mapping_id, board_id, item_id, collection, local_id,
		                           sync_status, last_sync_at, is_subitem, parent_item_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + itemMappingColumns

	created, err := scanItemMapping(s.db.Pool().QueryRow(ctx, query,
		im.BoardMappingID, im.BoardID, im.ItemID, im.Collection, im.LocalID,
		im.SyncStatus, im.LastSyncAt, im.IsSubitem, im.ParentItemID))
	if err != nil {
		s.logger.Errorf("Failed to create item mapping: %v", err)
		return nil, err
	}
	return created, nil
}

// Get looks up one pair by its id
func (s *ItemMappings) Get(ctx context.Context, itemMappingID string) (*models.ItemMapping, error) {
	query := `SELECT ` + itemMappingColumns + ` FROM item_mappings WHERE item_mapping_id = $1`

	im, err := scanItemMapping(s.db.Pool().QueryRow(ctx, query, itemMappingID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemMappingNotFound
		}
		return nil, err
	}
	return im, nil
}

// GetByItem looks up the pair for one external item
func (s *ItemMappings) GetByItem(ctx context.Context, boardID, itemID string) (*models.ItemMapping, error) {
	query := `SELECT ` + itemMappingColumns + ` FROM item_mappings WHERE board_id = $1 AND item_id = $2`

	im, err := scanItemMapping(s.db.Pool().QueryRow(ctx, query, boardID, itemID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemMappingNotFound
		}
		return nil, err
	}
	return im, nil
}

// GetByLocal looks up the pair for one local document
func (s *ItemMappings) GetByLocal(ctx context.Context, collection, localID string) (*models.ItemMapping, error) {
	query := `SELECT ` + itemMappingColumns + ` FROM item_mappings WHERE collection = $1 AND local_id = $2`

	im, err := scanItemMapping(s.db.Pool().QueryRow(ctx, query, collection, localID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemMappingNotFound
		}
		return nil, err
	}
	return im, nil
}

// ListByBoardMapping returns all pairs under one board mapping
func (s *ItemMappings) ListByBoardMapping(ctx context.Context, boardMappingID string) ([]*models.ItemMapping, error) {
	query := `SELECT ` + itemMappingColumns + ` FROM item_mappings
		WHERE board_mapping_id = $1 ORDER BY created`

	rows, err := s.db.Pool().Query(ctx, query, boardMappingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mappings []*models.ItemMapping
	for rows.Next() {
		im, err := scanItemMapping(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, im)
	}
	return mappings, rows.Err()
}

// Touch stamps a successful sync on the pair
func (s *ItemMappings) Touch(ctx context.Context, itemMappingID, status string, syncedAt time.Time) error {
	query := `
		UPDATE item_mappings
		SET sync_status = $2, last_sync_at = $3, updated = now()
		WHERE item_mapping_id = $1
	`
	tag, err := s.db.Pool().Exec(ctx, query, itemMappingID, status, syncedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemMappingNotFound
	}
	return nil
}

// Repoint re-targets the pair at a new local document, used by the
// self-healing path when the original document was deleted.
func (s *ItemMappings) Repoint(ctx context.Context, itemMappingID, localID string, syncedAt time.Time) error {
	query := `
		UPDATE item_mappings
		SET local_id = $2, sync_status = 'synced', last_sync_at = $3, updated = now()
		WHERE item_mapping_id = $1
	`
	tag, err := s.db.Pool().Exec(ctx, query, itemMappingID, localID, syncedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemMappingNotFound
	}
	return nil
}

// Delete removes one identity pair
func (s *ItemMappings) Delete(ctx context.Context, itemMappingID string) error {
	tag, err := s.db.Pool().Exec(ctx,
		`DELETE FROM item_mappings WHERE item_mapping_id = $1`, itemMappingID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemMappingNotFound
	}
	return nil
}
