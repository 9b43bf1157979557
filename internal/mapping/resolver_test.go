package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardsync/boardsync/internal/boardapi"
	"github.com/boardsync/boardsync/internal/transcode"
	"github.com/boardsync/boardsync/pkg/models"
)

func enabledMapping(columnID, columnType, fieldPath string) models.ColumnMapping {
	return models.ColumnMapping{
		ColumnID:   columnID,
		ColumnType: columnType,
		FieldPath:  fieldPath,
		IsEnabled:  true,
	}
}

func TestLocalToExternal(t *testing.T) {
	doc := map[string]interface{}{
		"name":  "Acme order",
		"total": 99.5,
		"shipping": map[string]interface{}{
			"city": "Berlin",
		},
	}
	mappings := []models.ColumnMapping{
		enabledMapping("text_col", transcode.ColumnText, "shipping.city"),
		enabledMapping("num_col", transcode.ColumnNumbers, "total"),
	}

	name, values := LocalToExternal(doc, mappings)

	assert.Equal(t, "Acme order", name)
	assert.Equal(t, "Berlin", values["text_col"])
	assert.Equal(t, 99.5, values["num_col"])
}

func TestLocalToExternalSkipsDisabledAndMissing(t *testing.T) {
	doc := map[string]interface{}{"name": "Thing", "total": 5}

	disabled := enabledMapping("num_col", transcode.ColumnNumbers, "total")
	disabled.IsEnabled = false

	mappings := []models.ColumnMapping{
		disabled,
		enabledMapping("ghost_col", transcode.ColumnText, "no.such.path"),
	}

	_, values := LocalToExternal(doc, mappings)
	assert.Empty(t, values)
}

func TestExternalToLocal(t *testing.T) {
	item := &boardapi.Item{
		ID:   "item-42",
		Name: "Acme order",
		ColumnValues: []boardapi.ColumnValue{
			{ID: "text_col", Type: transcode.ColumnText, Text: "Berlin"},
			{ID: "status_col", Type: transcode.ColumnStatus, Value: []byte(`{"label":"Done"}`)},
		},
	}
	mappings := []models.ColumnMapping{
		enabledMapping("text_col", transcode.ColumnText, "shipping.city"),
		enabledMapping("status_col", transcode.ColumnStatus, "status"),
	}

	fields := ExternalToLocal(item, mappings)

	assert.Equal(t, "Berlin", fields["shipping.city"])
	assert.Equal(t, "Done", fields["status"])
	assert.Equal(t, "item-42", fields[ReservedItemIDKey])
}

func TestExternalToLocalRequiredDefault(t *testing.T) {
	fallback := "pending"
	required := enabledMapping("status_col", transcode.ColumnStatus, "status")
	required.IsRequired = true
	required.DefaultValue = &fallback

	optional := enabledMapping("note_col", transcode.ColumnText, "note")

	item := &boardapi.Item{ID: "item-1"}
	fields := ExternalToLocal(item, []models.ColumnMapping{required, optional})

	assert.Equal(t, "pending", fields["status"])
	// An optional field with no cell and no default is simply absent.
	_, present := fields["note"]
	assert.False(t, present)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "From title", DisplayName(map[string]interface{}{"title": "From title"}))
	assert.Equal(t, "Item abc", DisplayName(map[string]interface{}{"_id": "abc"}))
	assert.Equal(t, "Untitled Item", DisplayName(map[string]interface{}{}))

	// An empty name string falls through to the next candidate.
	assert.Equal(t, "Label", DisplayName(map[string]interface{}{"name": "", "label": "Label"}))
}

func TestResolveFieldPath(t *testing.T) {
	doc := map[string]interface{}{
		"a": map[string]interface{}{
			"b": map[string]interface{}{"c": 7},
		},
		"flat": "x",
	}

	v, ok := ResolveFieldPath(doc, "a.b.c")
	require.True(t, ok)
	assert.Equal(t, 7, v)

	v, ok = ResolveFieldPath(doc, "flat")
	require.True(t, ok)
	assert.Equal(t, "x", v)

	_, ok = ResolveFieldPath(doc, "a.missing.c")
	assert.False(t, ok)

	// A scalar in the middle of the path is not traversable.
	_, ok = ResolveFieldPath(doc, "flat.deeper")
	assert.False(t, ok)

	_, ok = ResolveFieldPath(doc, "")
	assert.False(t, ok)
}

func TestSetFieldPath(t *testing.T) {
	doc := map[string]interface{}{}
	SetFieldPath(doc, "a.b.c", 42)

	v, ok := ResolveFieldPath(doc, "a.b.c")
	require.True(t, ok)
	assert.Equal(t, 42, v)

	// Overwrites a scalar intermediate with a map.
	doc2 := map[string]interface{}{"a": "scalar"}
	SetFieldPath(doc2, "a.b", "deep")
	v, ok = ResolveFieldPath(doc2, "a.b")
	require.True(t, ok)
	assert.Equal(t, "deep", v)
}

func TestExpandFields(t *testing.T) {
	flat := map[string]interface{}{
		"status":           "New",
		"shipping.city":    "Berlin",
		"shipping.zip":     "10115",
		ReservedItemIDKey:  "it-1",
		"customer.address": map[string]interface{}{"street": "Unter den Linden"},
	}

	doc := ExpandFields(flat)

	assert.Equal(t, "New", doc["status"])
	assert.Equal(t, "it-1", doc[ReservedItemIDKey])

	shipping, ok := doc["shipping"].(map[string]interface{})
	require.True(t, ok, "dotted siblings share one nested map")
	assert.Equal(t, "Berlin", shipping["city"])
	assert.Equal(t, "10115", shipping["zip"])

	v, ok := ResolveFieldPath(doc, "customer.address.street")
	require.True(t, ok)
	assert.Equal(t, "Unter den Linden", v)

	// Expanded documents diff clean against their own flat source.
	assert.Empty(t, DiffFields(doc, flat))
}

func TestDiffFields(t *testing.T) {
	existing := map[string]interface{}{
		"status": "Done",
		"total":  float64(5),
		"shipping": map[string]interface{}{
			"city": "Berlin",
		},
		"tags": []interface{}{"a", "b"},
	}
	incoming := map[string]interface{}{
		"status":        "Done",
		"total":         5,
		"shipping.city": "Berlin",
		"tags":          []interface{}{"a", "b"},
		"note":          "new",
	}

	changed := DiffFields(existing, incoming)
	assert.Equal(t, map[string]interface{}{"note": "new"}, changed)
}

func TestDiffFieldsDetectsChange(t *testing.T) {
	existing := map[string]interface{}{"status": "Working"}
	incoming := map[string]interface{}{"status": "Done"}

	changed := DiffFields(existing, incoming)
	assert.Equal(t, map[string]interface{}{"status": "Done"}, changed)
}

func TestValuesEqual(t *testing.T) {
	assert.True(t, ValuesEqual(nil, nil))
	assert.True(t, ValuesEqual("a", "a"))
	assert.False(t, ValuesEqual("a", "b"))

	// Numeric representations converge after JSON decoding.
	assert.True(t, ValuesEqual(5, float64(5)))
	assert.True(t, ValuesEqual(int64(7), 7))
	assert.False(t, ValuesEqual(5, 6.0))

	// Compound shapes compare by encoding.
	assert.True(t, ValuesEqual(
		map[string]interface{}{"x": float64(1)},
		map[string]interface{}{"x": 1},
	))
	assert.False(t, ValuesEqual([]interface{}{"a"}, []interface{}{"b"}))
	assert.False(t, ValuesEqual(nil, "a"))
}
