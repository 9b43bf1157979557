package conflict

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardsync/boardsync/pkg/models"
)

type fakeConflictStore struct {
	conflicts map[string]*models.Conflict
	updates   int
	getErr    error
	updateErr error
}

func newFakeConflictStore(conflicts ...*models.Conflict) *fakeConflictStore {
	s := &fakeConflictStore{conflicts: make(map[string]*models.Conflict)}
	for _, c := range conflicts {
		s.conflicts[c.ConflictID] = c
	}
	return s
}

func (s *fakeConflictStore) GetConflict(ctx context.Context, conflictID string) (*models.Conflict, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	c, ok := s.conflicts[conflictID]
	if !ok {
		return nil, errors.New("conflict not found")
	}
	copied := *c
	return &copied, nil
}

func (s *fakeConflictStore) UpdateConflict(ctx context.Context, conflict *models.Conflict) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updates++
	s.conflicts[conflict.ConflictID] = conflict
	return nil
}

func detectedConflict(id string) *models.Conflict {
	return &models.Conflict{
		ConflictID:         id,
		ItemMappingID:      "im-1",
		BoardMappingID:     "bm-1",
		ConflictingFields:  []string{"status"},
		ExternalValues:     map[string]interface{}{"status": "Done"},
		LocalValues:        map[string]interface{}{"status": "Working"},
		LastExternalUpdate: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		LastLocalUpdate:    time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		Status:             models.ConflictDetected,
		DetectedAt:         time.Date(2025, 3, 1, 12, 5, 0, 0, time.UTC),
	}
}

func TestResolveExternalWins(t *testing.T) {
	store := newFakeConflictStore(detectedConflict("c-1"))
	r := NewResolver(store)

	res, err := r.Resolve(context.Background(), "c-1", models.StrategyExternalWins, nil, "alice")
	require.NoError(t, err)

	assert.Equal(t, models.ConflictResolvedAuto, res.Status)
	assert.Equal(t, map[string]interface{}{"status": "Done"}, res.Values)
	assert.False(t, res.AlreadyResolved)

	stored := store.conflicts["c-1"]
	assert.Equal(t, models.ConflictResolvedAuto, stored.Status)
	require.NotNil(t, stored.ResolvedBy)
	assert.Equal(t, "alice", *stored.ResolvedBy)
	require.NotNil(t, stored.ResolvedAt)
}

func TestResolveLocalWins(t *testing.T) {
	store := newFakeConflictStore(detectedConflict("c-1"))
	r := NewResolver(store)

	res, err := r.Resolve(context.Background(), "c-1", models.StrategyLocalWins, nil, "")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"status": "Working"}, res.Values)
	assert.Nil(t, store.conflicts["c-1"].ResolvedBy)
}

func TestResolveLatestWinsPicksWholesale(t *testing.T) {
	// External side is newer, so the external value set wins entirely.
	newerExternal := detectedConflict("c-ext")
	store := newFakeConflictStore(newerExternal)
	r := NewResolver(store)

	res, err := r.Resolve(context.Background(), "c-ext", models.StrategyLatestWins, nil, "")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"status": "Done"}, res.Values)

	// Flip the timestamps and the local set wins.
	newerLocal := detectedConflict("c-loc")
	newerLocal.LastLocalUpdate = newerLocal.LastExternalUpdate.Add(time.Hour)
	store2 := newFakeConflictStore(newerLocal)
	r2 := NewResolver(store2)

	res, err = r2.Resolve(context.Background(), "c-loc", models.StrategyLatestWins, nil, "")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"status": "Working"}, res.Values)
}

func TestResolveManual(t *testing.T) {
	store := newFakeConflictStore(detectedConflict("c-1"))
	r := NewResolver(store)

	values := map[string]interface{}{"status": "Blocked"}
	res, err := r.Resolve(context.Background(), "c-1", models.StrategyManual, values, "bob")
	require.NoError(t, err)

	assert.Equal(t, models.ConflictResolvedManual, res.Status)
	assert.Equal(t, values, res.Values)
}

func TestResolveManualWithoutValues(t *testing.T) {
	store := newFakeConflictStore(detectedConflict("c-1"))
	r := NewResolver(store)

	_, err := r.Resolve(context.Background(), "c-1", models.StrategyManual, nil, "bob")
	assert.ErrorIs(t, err, ErrMissingResolution)
	assert.Zero(t, store.updates)
}

func TestResolveUnknownStrategy(t *testing.T) {
	store := newFakeConflictStore(detectedConflict("c-1"))
	r := NewResolver(store)

	_, err := r.Resolve(context.Background(), "c-1", "coin_flip", nil, "")
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestResolveIsIdempotent(t *testing.T) {
	store := newFakeConflictStore(detectedConflict("c-1"))
	r := NewResolver(store)

	first, err := r.Resolve(context.Background(), "c-1", models.StrategyExternalWins, nil, "alice")
	require.NoError(t, err)
	require.Equal(t, 1, store.updates)

	// A second resolve with a different strategy returns the stored
	// outcome and does not write again.
	second, err := r.Resolve(context.Background(), "c-1", models.StrategyLocalWins, nil, "bob")
	require.NoError(t, err)

	assert.True(t, second.AlreadyResolved)
	assert.Equal(t, first.Values, second.Values)
	assert.Equal(t, models.StrategyExternalWins, second.Strategy)
	assert.Equal(t, 1, store.updates)
}

func TestResolveBatch(t *testing.T) {
	store := newFakeConflictStore(detectedConflict("c-1"), detectedConflict("c-2"))
	r := NewResolver(store)

	outcomes := r.ResolveBatch(context.Background(), []string{"c-1", "missing", "c-2"}, models.StrategyExternalWins, "alice")
	require.Len(t, outcomes, 3)

	assert.True(t, outcomes[0].Success)
	assert.False(t, outcomes[1].Success)
	assert.NotEmpty(t, outcomes[1].Message)
	assert.True(t, outcomes[2].Success)
}
