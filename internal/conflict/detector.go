// Package conflict flags and reconciles field-level divergences between
// an external item and its mapped local document.
package conflict

import (
	"sort"
	"strings"
	"time"

	"github.com/boardsync/boardsync/internal/mapping"
)

// Detection is the outcome of comparing both sides of an item mapping.
type Detection struct {
	HasConflicts      bool
	ConflictingFields []string
}

// Detect compares the transformed external snapshot against the local
// document. Detection is gated: it only runs when both sides were
// modified after lastSyncAt. A single-sided change is not a conflict,
// that side simply wins.
func Detect(external, local map[string]interface{}, lastSyncAt, lastExternalUpdate, lastLocalUpdate time.Time) Detection {
	bothChanged := lastExternalUpdate.After(lastSyncAt) && lastLocalUpdate.After(lastSyncAt)
	if !bothChanged {
		return Detection{}
	}

	var conflicting []string
	for field, externalValue := range external {
		if isReserved(field) {
			continue
		}
		localValue, _ := mapping.ResolveFieldPath(local, field)
		if !mapping.ValuesEqual(externalValue, localValue) {
			conflicting = append(conflicting, field)
		}
	}
	sort.Strings(conflicting)

	return Detection{
		HasConflicts:      len(conflicting) > 0,
		ConflictingFields: conflicting,
	}
}

// isReserved excludes internal bookkeeping keys from comparison. The
// identity key is deliberately not excluded so a re-pointed mapping
// still surfaces as a conflict.
func isReserved(field string) bool {
	if field == mapping.ReservedItemIDKey {
		return false
	}
	return strings.HasPrefix(field, "_")
}
