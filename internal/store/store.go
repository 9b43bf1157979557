// Package store abstracts the local document store. Collection and
// field names arrive as data from mapping configuration, so the
// interface is string-keyed rather than typed per collection.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// Comparison operators supported by Query filters.
const (
	OpEq  = "eq"
	OpGt  = "gt"
	OpGte = "gte"
	OpLt  = "lt"
	OpLte = "lte"
)

// Filter is one equality or range condition on a document field.
type Filter struct {
	Field string
	Op    string
	Value interface{}
}

// Record is one stored document with its bookkeeping timestamps.
type Record struct {
	ID        string
	Fields    map[string]interface{}
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RecordStore is the capability surface the sync engine needs from the
// document store. Every operation is individually atomic; nothing is
// transactional across calls.
type RecordStore interface {
	Get(ctx context.Context, collection, id string) (*Record, error)
	Insert(ctx context.Context, collection string, fields map[string]interface{}) (*Record, error)
	Patch(ctx context.Context, collection, id string, fields map[string]interface{}) (*Record, error)
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, collection, index string, filters []Filter, limit int) ([]Record, error)
}
