// Package mapping transforms whole records between the local document
// shape and the external board's item shape, driven by declared column
// mappings.
package mapping

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/boardsync/boardsync/internal/boardapi"
	"github.com/boardsync/boardsync/internal/transcode"
	"github.com/boardsync/boardsync/pkg/models"
)

// ReservedItemIDKey is the document field that carries the external
// item id for identity tracking. It is the only reserved key compared
// during conflict detection.
const ReservedItemIDKey = "_externalItemID"

const fallbackDisplayName = "Untitled Item"

// LocalToExternal transforms a local document into the external item
// shape: a display name plus column values keyed by external column id.
// Disabled column mappings are skipped; a field path that does not
// resolve yields no column value rather than an error.
func LocalToExternal(doc map[string]interface{}, columnMappings []models.ColumnMapping) (string, map[string]interface{}) {
	columnValues := make(map[string]interface{})

	for _, cm := range columnMappings {
		if !cm.IsEnabled {
			continue
		}
		value, ok := ResolveFieldPath(doc, cm.FieldPath)
		if !ok || value == nil {
			continue
		}
		external := transcode.ToExternal(value, cm.ColumnType)
		if external == nil {
			continue
		}
		columnValues[cm.ColumnID] = external
	}

	return DisplayName(doc), columnValues
}

// ExternalToLocal transforms an external item into local document
// fields keyed by field path. Required fields with no incoming value
// fall back to their declared default; the item id is always attached
// under the reserved identity key. Fields not covered by any mapping
// are left untouched so updates stay partial.
func ExternalToLocal(item *boardapi.Item, columnMappings []models.ColumnMapping) map[string]interface{} {
	fields := make(map[string]interface{})

	for _, cm := range columnMappings {
		if !cm.IsEnabled {
			continue
		}

		cv, found := item.ColumnValueByID(cm.ColumnID)
		var value interface{}
		if found {
			value = transcode.ToLocal(transcode.Cell{
				Type:  cm.ColumnType,
				Text:  cv.Text,
				Value: cv.Value,
			})
		}

		if value == nil && cm.IsRequired && cm.DefaultValue != nil {
			value = *cm.DefaultValue
		}
		if value == nil {
			continue
		}
		fields[cm.FieldPath] = value
	}

	fields[ReservedItemIDKey] = item.ID
	return fields
}

// DisplayName picks a human-readable name for a document, falling back
// through the common name-carrying fields.
func DisplayName(doc map[string]interface{}) string {
	for _, key := range []string{"name", "title", "displayName", "label"} {
		if v, ok := doc[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	if id, ok := doc["_id"]; ok {
		return fmt.Sprintf("Item %v", id)
	}
	return fallbackDisplayName
}

// ResolveFieldPath walks a dot-separated path through nested maps.
// A missing segment reports ok=false instead of an error.
func ResolveFieldPath(doc map[string]interface{}, path string) (interface{}, bool) {
	if path == "" {
		return nil, false
	}

	segments := strings.Split(path, ".")
	var current interface{} = doc
	for _, seg := range segments {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// SetFieldPath writes a value at a dot-separated path, creating
// intermediate maps as needed.
func SetFieldPath(doc map[string]interface{}, path string, value interface{}) {
	segments := strings.Split(path, ".")
	current := doc
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

// ExpandFields rebuilds a flat map keyed by dot paths into the nested
// document shape. Freshly inserted documents must store `a.b` as
// `a: {b: ...}` so later path resolution and patches see one layout.
func ExpandFields(fields map[string]interface{}) map[string]interface{} {
	doc := make(map[string]interface{}, len(fields))
	for path, value := range fields {
		SetFieldPath(doc, path, value)
	}
	return doc
}

// DiffFields returns the subset of incoming fields whose values differ
// from the existing document. Compound values are compared by their
// JSON encoding so a semantically identical fetch does not produce a
// no-op patch.
func DiffFields(existing, incoming map[string]interface{}) map[string]interface{} {
	changed := make(map[string]interface{})
	for path, newValue := range incoming {
		oldValue, _ := ResolveFieldPath(existing, path)
		if !ValuesEqual(oldValue, newValue) {
			changed[path] = newValue
		}
	}
	return changed
}

// ValuesEqual compares two field values: strict equality for scalars,
// JSON-encoded equality for compound shapes.
func ValuesEqual(a, b interface{}) bool {
	if a == nil && b == nil {
		return true
	}
	if isCompound(a) || isCompound(b) {
		aj, errA := json.Marshal(a)
		bj, errB := json.Marshal(b)
		if errA != nil || errB != nil {
			return reflect.DeepEqual(a, b)
		}
		return string(aj) == string(bj)
	}
	if a == b {
		return true
	}
	// Numeric values may arrive as different Go types after JSON decoding
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		return af == bf
	}
	return false
}

func isCompound(v interface{}) bool {
	switch v.(type) {
	case map[string]interface{}, []interface{}, []string:
		return true
	default:
		return false
	}
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
