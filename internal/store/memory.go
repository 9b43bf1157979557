package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process RecordStore used by tests and as the
// reference implementation of the query semantics.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]*Record
	now         func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]*Record),
		now:         time.Now,
	}
}

// SetClock overrides the timestamp source, used by tests.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *MemoryStore) collection(name string) map[string]*Record {
	c, ok := s.collections[name]
	if !ok {
		c = make(map[string]*Record)
		s.collections[name] = c
	}
	return c
}

// Get returns one document by id.
func (s *MemoryStore) Get(ctx context.Context, collection, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.collections[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return copyRecord(rec), nil
}

// Insert creates a new document and returns it with its generated id.
func (s *MemoryStore) Insert(ctx context.Context, collection string, fields map[string]interface{}) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rec := &Record{
		ID:        uuid.New().String(),
		Fields:    copyFields(fields),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.collection(collection)[rec.ID] = rec
	return copyRecord(rec), nil
}

// Patch merges fields into an existing document. Dotted paths patch
// nested maps in place.
func (s *MemoryStore) Patch(ctx context.Context, collection, id string, fields map[string]interface{}) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.collections[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	for path, value := range fields {
		setPath(rec.Fields, path, value)
	}
	rec.UpdatedAt = s.now()
	return copyRecord(rec), nil
}

// Delete removes a document. Deleting a missing document is an error.
func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collection][id]; !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	delete(s.collections[collection], id)
	return nil
}

// Query scans a collection applying every filter conjunctively. The
// index argument is accepted for interface parity but a scan is always
// performed. Results are ordered by creation time.
func (s *MemoryStore) Query(ctx context.Context, collection, index string, filters []Filter, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for _, rec := range s.collections[collection] {
		if matchesAll(rec, filters) {
			out = append(out, *copyRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func matchesAll(rec *Record, filters []Filter) bool {
	for _, f := range filters {
		if !matches(rec, f) {
			return false
		}
	}
	return true
}

func matches(rec *Record, f Filter) bool {
	var value interface{}
	switch f.Field {
	case "_updatedAt":
		value = rec.UpdatedAt
	case "_createdAt":
		value = rec.CreatedAt
	case "_id":
		value = rec.ID
	default:
		value = getPath(rec.Fields, f.Field)
	}

	switch f.Op {
	case OpEq, "":
		return equalValues(value, f.Value)
	case OpGt, OpGte, OpLt, OpLte:
		return compareValues(value, f.Value, f.Op)
	default:
		return false
	}
}

func equalValues(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == b
	}
	if at, aok := a.(time.Time); aok {
		if bt, bok := b.(time.Time); bok {
			return at.Equal(bt)
		}
	}
	if af, aok := numeric(a); aok {
		if bf, bok := numeric(b); bok {
			return af == bf
		}
	}
	return a == b
}

func compareValues(a, b interface{}, op string) bool {
	if at, aok := a.(time.Time); aok {
		if bt, bok := b.(time.Time); bok {
			return compareOrdered(at.UnixNano(), bt.UnixNano(), op)
		}
		return false
	}
	if af, aok := numeric(a); aok {
		if bf, bok := numeric(b); bok {
			return compareFloat(af, bf, op)
		}
	}
	if as, aok := a.(string); aok {
		if bs, bok := b.(string); bok {
			return compareOrdered(int64(strings.Compare(as, bs)), 0, op)
		}
	}
	return false
}

func compareOrdered(a, b int64, op string) bool {
	switch op {
	case OpGt:
		return a > b
	case OpGte:
		return a >= b
	case OpLt:
		return a < b
	case OpLte:
		return a <= b
	default:
		return false
	}
}

func compareFloat(a, b float64, op string) bool {
	switch op {
	case OpGt:
		return a > b
	case OpGte:
		return a >= b
	case OpLt:
		return a < b
	case OpLte:
		return a <= b
	default:
		return false
	}
}

func numeric(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func getPath(fields map[string]interface{}, path string) interface{} {
	segments := strings.Split(path, ".")
	var current interface{} = fields
	for _, seg := range segments {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current = m[seg]
	}
	return current
}

func setPath(fields map[string]interface{}, path string, value interface{}) {
	segments := strings.Split(path, ".")
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

func copyFields(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if m, ok := v.(map[string]interface{}); ok {
			out[k] = copyFields(m)
			continue
		}
		out[k] = v
	}
	return out
}

func copyRecord(rec *Record) *Record {
	return &Record{
		ID:        rec.ID,
		Fields:    copyFields(rec.Fields),
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}
