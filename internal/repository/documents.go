package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/boardsync/boardsync/internal/store"
	"github.com/boardsync/boardsync/pkg/database"
	"github.com/boardsync/boardsync/pkg/logger"
)

// Documents implements store.RecordStore over a JSONB documents table.
// Collection names arrive as data from mapping configuration.
type Documents struct {
	db     *database.PostgreSQL
	logger *logger.Logger
}

// NewDocuments creates a Postgres-backed record store
func NewDocuments(db *database.PostgreSQL, logger *logger.Logger) *Documents {
	return &Documents{db: db, logger: logger}
}

func scanDocument(row pgx.Row) (*store.Record, error) {
	var rec store.Record
	var fields []byte
	if err := row.Scan(&rec.ID, &fields, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(fields, &rec.Fields); err != nil {
		return nil, fmt.Errorf("failed to decode document fields: %w", err)
	}
	return &rec, nil
}

// Get returns one document by id
func (s *Documents) Get(ctx context.Context, collection, id string) (*store.Record, error) {
	query := `SELECT document_id, fields, created, updated FROM documents
		WHERE collection = $1 AND document_id = $2`

	rec, err := scanDocument(s.db.Pool().QueryRow(ctx, query, collection, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
		}
		return nil, err
	}
	return rec, nil
}

// Insert creates a new document
func (s *Documents) Insert(ctx context.Context, collection string, fields map[string]interface{}) (*store.Record, error) {
	encoded, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document fields: %w", err)
	}

	query := `
		INSERT INTO documents (collection, fields)
		VALUES ($1, $2)
		RETURNING document_id, fields, created, updated
	`
	rec, err := scanDocument(s.db.Pool().QueryRow(ctx, query, collection, encoded))
	if err != nil {
		s.logger.Errorf("Failed to insert document into %s: %v", collection, err)
		return nil, err
	}
	return rec, nil
}

// Patch merges fields into an existing document. The merge happens in
// application code because dotted paths address nested objects.
func (s *Documents) Patch(ctx context.Context, collection, id string, fields map[string]interface{}) (*store.Record, error) {
	existing, err := s.Get(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	for path, value := range fields {
		setDocumentPath(existing.Fields, path, value)
	}

	encoded, err := json.Marshal(existing.Fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document fields: %w", err)
	}

	query := `
		UPDATE documents
		SET fields = $3, updated = now()
		WHERE collection = $1 AND document_id = $2
		RETURNING document_id, fields, created, updated
	`
	rec, err := scanDocument(s.db.Pool().QueryRow(ctx, query, collection, id, encoded))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
		}
		return nil, err
	}
	return rec, nil
}

// Delete removes one document
func (s *Documents) Delete(ctx context.Context, collection, id string) error {
	tag, err := s.db.Pool().Exec(ctx,
		`DELETE FROM documents WHERE collection = $1 AND document_id = $2`, collection, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
	}
	return nil
}

// Query filters a collection. Bookkeeping fields map onto real columns;
// document fields are filtered on their JSONB text representation.
func (s *Documents) Query(ctx context.Context, collection, index string, filters []store.Filter, limit int) ([]store.Record, error) {
	query := `SELECT document_id, fields, created, updated FROM documents WHERE collection = $1`
	args := []interface{}{collection}

	for _, f := range filters {
		op, ok := sqlOp(f.Op)
		if !ok {
			return nil, fmt.Errorf("unsupported filter operator: %s", f.Op)
		}
		switch f.Field {
		case "_updatedAt":
			args = append(args, toTimestamp(f.Value))
			query += fmt.Sprintf(" AND updated %s $%d", op, len(args))
		case "_createdAt":
			args = append(args, toTimestamp(f.Value))
			query += fmt.Sprintf(" AND created %s $%d", op, len(args))
		case "_id":
			args = append(args, f.Value)
			query += fmt.Sprintf(" AND document_id %s $%d", op, len(args))
		default:
			args = append(args, f.Field, fmt.Sprintf("%v", f.Value))
			query += fmt.Sprintf(" AND fields #>> string_to_array($%d, '.') %s $%d", len(args)-1, op, len(args))
		}
	}

	query += " ORDER BY created"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []store.Record
	for rows.Next() {
		rec, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func sqlOp(op string) (string, bool) {
	switch op {
	case store.OpEq, "":
		return "=", true
	case store.OpGt:
		return ">", true
	case store.OpGte:
		return ">=", true
	case store.OpLt:
		return "<", true
	case store.OpLte:
		return "<=", true
	default:
		return "", false
	}
}

func toTimestamp(v interface{}) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case int64:
		return time.UnixMilli(t)
	case float64:
		return time.UnixMilli(int64(t))
	default:
		return time.Time{}
	}
}

func setDocumentPath(fields map[string]interface{}, path string, value interface{}) {
	segments := splitPath(path)
	current := fields
	for i, seg := range segments {
		if i == len(segments)-1 {
			current[seg] = value
			return
		}
		next, ok := current[seg].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			current[seg] = next
		}
		current = next
	}
}

func splitPath(path string) []string {
	var segments []string
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '.' {
			if i > start {
				segments = append(segments, path[start:i])
			}
			start = i + 1
		}
	}
	return segments
}
