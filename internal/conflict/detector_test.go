package conflict

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/boardsync/boardsync/internal/mapping"
)

func TestDetectBothSidesChanged(t *testing.T) {
	lastSync := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	after := lastSync.Add(time.Hour)

	external := map[string]interface{}{
		"status":        "Done",
		"total":         float64(10),
		"shipping.city": "Berlin",
	}
	local := map[string]interface{}{
		"status": "Working",
		"total":  float64(10),
		"shipping": map[string]interface{}{
			"city": "Hamburg",
		},
	}

	d := Detect(external, local, lastSync, after, after)

	assert.True(t, d.HasConflicts)
	assert.Equal(t, []string{"shipping.city", "status"}, d.ConflictingFields)
}

func TestDetectSingleSidedChangeIsNotAConflict(t *testing.T) {
	lastSync := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	after := lastSync.Add(time.Hour)
	before := lastSync.Add(-time.Hour)

	external := map[string]interface{}{"status": "Done"}
	local := map[string]interface{}{"status": "Working"}

	assert.False(t, Detect(external, local, lastSync, after, before).HasConflicts)
	assert.False(t, Detect(external, local, lastSync, before, after).HasConflicts)
	assert.False(t, Detect(external, local, lastSync, before, before).HasConflicts)
}

func TestDetectIdenticalValues(t *testing.T) {
	lastSync := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	after := lastSync.Add(time.Hour)

	external := map[string]interface{}{"status": "Done", "total": 10}
	local := map[string]interface{}{"status": "Done", "total": float64(10)}

	d := Detect(external, local, lastSync, after, after)
	assert.False(t, d.HasConflicts)
	assert.Empty(t, d.ConflictingFields)
}

func TestDetectSkipsBookkeepingFields(t *testing.T) {
	lastSync := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	after := lastSync.Add(time.Hour)

	external := map[string]interface{}{
		"_updatedAt": "2025-06-01",
		"status":     "Done",
	}
	local := map[string]interface{}{
		"_updatedAt": "2025-05-01",
		"status":     "Done",
	}

	assert.False(t, Detect(external, local, lastSync, after, after).HasConflicts)
}

func TestDetectIdentityKeyStillCompared(t *testing.T) {
	lastSync := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	after := lastSync.Add(time.Hour)

	external := map[string]interface{}{mapping.ReservedItemIDKey: "item-2"}
	local := map[string]interface{}{mapping.ReservedItemIDKey: "item-1"}

	d := Detect(external, local, lastSync, after, after)
	assert.True(t, d.HasConflicts)
	assert.Equal(t, []string{mapping.ReservedItemIDKey}, d.ConflictingFields)
}
