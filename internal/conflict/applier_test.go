package conflict

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardsync/boardsync/internal/mapping"
	"github.com/boardsync/boardsync/internal/store"
	"github.com/boardsync/boardsync/pkg/models"
)

type fakeItemMappingSource struct {
	byID map[string]*models.ItemMapping
}

func (f *fakeItemMappingSource) Get(ctx context.Context, itemMappingID string) (*models.ItemMapping, error) {
	im, ok := f.byID[itemMappingID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return im, nil
}

func applierHarness(t *testing.T, c *models.Conflict) (*Applier, *store.MemoryStore, string) {
	t.Helper()

	records := store.NewMemoryStore()
	doc, err := records.Insert(context.Background(), "orders", map[string]interface{}{
		"status":   "Working",
		"shipping": map[string]interface{}{"city": "Hamburg"},
	})
	require.NoError(t, err)

	items := &fakeItemMappingSource{byID: map[string]*models.ItemMapping{
		"im-1": {ItemMappingID: "im-1", Collection: "orders", LocalID: doc.ID},
	}}
	return NewApplier(newFakeConflictStore(c), records, items), records, doc.ID
}

func TestApplyWritesResolvedValues(t *testing.T) {
	c := detectedConflict("c-1")
	c.Status = models.ConflictResolvedManual
	c.ResolvedValues = map[string]interface{}{
		"status":        "Done",
		"shipping.city": "Berlin",
	}
	a, records, docID := applierHarness(t, c)

	require.NoError(t, a.Apply(context.Background(), "c-1"))

	doc, err := records.Get(context.Background(), "orders", docID)
	require.NoError(t, err)
	assert.Equal(t, "Done", doc.Fields["status"])
	v, ok := mapping.ResolveFieldPath(doc.Fields, "shipping.city")
	require.True(t, ok)
	assert.Equal(t, "Berlin", v)

	// Re-applying writes the same values.
	require.NoError(t, a.Apply(context.Background(), "c-1"))
	again, err := records.Get(context.Background(), "orders", docID)
	require.NoError(t, err)
	assert.Equal(t, doc.Fields, again.Fields)
}

func TestApplyRequiresResolution(t *testing.T) {
	a, records, docID := applierHarness(t, detectedConflict("c-1"))

	err := a.Apply(context.Background(), "c-1")
	assert.ErrorIs(t, err, ErrNotResolved)

	doc, err := records.Get(context.Background(), "orders", docID)
	require.NoError(t, err)
	assert.Equal(t, "Working", doc.Fields["status"])
}

func TestResolveThenApplyConvergesPull(t *testing.T) {
	c := detectedConflict("c-1")
	a, records, docID := applierHarness(t, c)
	conflicts := a.conflicts

	_, err := NewResolver(conflicts).Resolve(context.Background(), "c-1", models.StrategyExternalWins, nil, "alice")
	require.NoError(t, err)
	require.NoError(t, a.Apply(context.Background(), "c-1"))

	// The document now matches the external side, so the divergence
	// that produced the conflict diffs clean afterwards.
	doc, err := records.Get(context.Background(), "orders", docID)
	require.NoError(t, err)
	assert.Empty(t, mapping.DiffFields(doc.Fields, c.ExternalValues))
}
