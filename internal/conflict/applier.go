package conflict

import (
	"context"
	"errors"
	"fmt"

	"github.com/boardsync/boardsync/internal/store"
	"github.com/boardsync/boardsync/pkg/models"
)

// ErrNotResolved is returned when application is requested for a
// conflict that has no recorded resolution yet.
var ErrNotResolved = errors.New("conflict is not resolved")

// ItemMappingSource resolves a conflict's item mapping to the local
// document behind it.
type ItemMappingSource interface {
	Get(ctx context.Context, itemMappingID string) (*models.ItemMapping, error)
}

// Applier writes recorded resolutions back onto the local documents
// they diverged from. Application is a separate step from resolution
// so a resolution can be recorded without immediately mutating data.
type Applier struct {
	conflicts    Store
	records      store.RecordStore
	itemMappings ItemMappingSource
}

// NewApplier creates an applier over the given stores.
func NewApplier(conflicts Store, records store.RecordStore, itemMappings ItemMappingSource) *Applier {
	return &Applier{conflicts: conflicts, records: records, itemMappings: itemMappings}
}

// Apply patches the conflicted document with the conflict's resolved
// values. Re-applying writes the same values, so application is
// idempotent. The patch advances the document's update time, which
// carries a locally-winning resolution out on the next push run.
func (a *Applier) Apply(ctx context.Context, conflictID string) error {
	c, err := a.conflicts.GetConflict(ctx, conflictID)
	if err != nil {
		return fmt.Errorf("failed to load conflict: %w", err)
	}
	if !c.Status.Resolved() {
		return ErrNotResolved
	}
	if len(c.ResolvedValues) == 0 {
		return nil
	}

	im, err := a.itemMappings.Get(ctx, c.ItemMappingID)
	if err != nil {
		return fmt.Errorf("item mapping %s: %w", c.ItemMappingID, err)
	}
	if _, err := a.records.Patch(ctx, im.Collection, im.LocalID, c.ResolvedValues); err != nil {
		return fmt.Errorf("failed to apply resolution to %s/%s: %w", im.Collection, im.LocalID, err)
	}
	return nil
}
