package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardsync/boardsync/internal/boardapi"
	"github.com/boardsync/boardsync/internal/mapping"
	"github.com/boardsync/boardsync/internal/store"
	"github.com/boardsync/boardsync/internal/transcode"
	"github.com/boardsync/boardsync/pkg/models"
)

// harness wires a Syncer over in-memory fakes for one integration with
// one bidirectional board mapping on collection "orders".
type harness struct {
	syncer       *Syncer
	integrations *fakeIntegrations
	mappings     *fakeBoardMappings
	items        *fakeItemMappings
	conflicts    *fakeConflicts
	records      *store.MemoryStore
	logs         *fakeLogStore
	api          *fakeAPI
	now          time.Time
}

func newHarness(t *testing.T, api *fakeAPI) *harness {
	t.Helper()

	h := &harness{
		integrations: &fakeIntegrations{byID: map[string]*models.Integration{
			"int-1": {IntegrationID: "int-1", IntegrationName: "prod", Enabled: true},
		}},
		mappings:  newFakeBoardMappings(),
		items:     newFakeItemMappings(),
		conflicts: &fakeConflicts{},
		records:   store.NewMemoryStore(),
		logs:      &fakeLogStore{},
		api:       api,
		now:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	h.records.SetClock(func() time.Time { return h.now })

	h.mappings.byID["bm-1"] = &models.BoardMapping{
		MappingID:      "bm-1",
		IntegrationID:  "int-1",
		BoardID:        "board-1",
		Collection:     "orders",
		Direction:      models.DirectionBidirectional,
		Enabled:        true,
		ConflictPolicy: models.StrategyManual,
	}
	h.mappings.columns["bm-1"] = []models.ColumnMapping{
		{ColumnID: "status_col", ColumnType: transcode.ColumnStatus, FieldPath: "status", IsEnabled: true},
		{ColumnID: "city_col", ColumnType: transcode.ColumnText, FieldPath: "shipping.city", IsEnabled: true},
	}

	h.syncer = New(Deps{
		Integrations:  h.integrations,
		BoardMappings: h.mappings,
		ItemMappings:  h.items,
		Conflicts:     h.conflicts,
		Records:       h.records,
		SyncLogs:      h.logs,
		NewClient:     func(in *models.Integration) boardapi.API { return api },
	})
	h.syncer.now = func() time.Time { return h.now }
	return h
}

func boardItem(id, status, city string, updatedAt time.Time) boardapi.Item {
	return boardapi.Item{
		ID:        id,
		Name:      "Order " + id,
		BoardID:   "board-1",
		UpdatedAt: updatedAt,
		ColumnValues: []boardapi.ColumnValue{
			{ID: "status_col", Type: transcode.ColumnStatus, Value: []byte(`{"label":"` + status + `"}`)},
			{ID: "city_col", Type: transcode.ColumnText, Text: city},
		},
	}
}

func TestPullCreatesUnknownItems(t *testing.T) {
	h := newHarness(t, newFakeAPI(
		boardItem("it-1", "New", "Berlin", time.Date(2025, 5, 30, 0, 0, 0, 0, time.UTC)),
	))

	res, err := h.syncer.PullBoard(context.Background(), "bm-1", Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, res.RecordsProcessed)
	assert.Equal(t, 1, res.RecordsCreated)
	assert.Zero(t, res.RecordsFailed)
	assert.Zero(t, res.ConflictsDetected)
	assert.NotEmpty(t, res.SyncLogID)

	im, err := h.items.GetByItem(context.Background(), "board-1", "it-1")
	require.NoError(t, err)
	assert.Equal(t, "orders", im.Collection)

	doc, err := h.records.Get(context.Background(), "orders", im.LocalID)
	require.NoError(t, err)
	assert.Equal(t, "New", doc.Fields["status"])
	assert.Equal(t, "it-1", doc.Fields[mapping.ReservedItemIDKey])

	shipping, ok := doc.Fields["shipping"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Berlin", shipping["city"])

	out := h.mappings.lastOutcome("bm-1")
	assert.Equal(t, models.BoardStatusSynced, out.status)
	require.NotNil(t, out.syncedAt)
}

func TestPullCreateThenIdenticalPullIsANoOp(t *testing.T) {
	h := newHarness(t, newFakeAPI(
		boardItem("it-1", "New", "Berlin", time.Date(2025, 5, 30, 0, 0, 0, 0, time.UTC)),
	))

	_, err := h.syncer.PullBoard(context.Background(), "bm-1", Options{})
	require.NoError(t, err)

	im, err := h.items.GetByItem(context.Background(), "board-1", "it-1")
	require.NoError(t, err)
	before, err := h.records.Get(context.Background(), "orders", im.LocalID)
	require.NoError(t, err)

	// Re-fetching the byte-identical item must not look like a change:
	// the created document stores nested fields, not literal dot keys.
	h.now = h.now.Add(time.Hour)
	res, err := h.syncer.PullBoard(context.Background(), "bm-1", Options{ForceFullSync: true})
	require.NoError(t, err)

	assert.Equal(t, 1, res.RecordsProcessed)
	assert.Zero(t, res.RecordsUpdated)
	assert.Zero(t, res.ConflictsDetected)

	after, err := h.records.Get(context.Background(), "orders", im.LocalID)
	require.NoError(t, err)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
}

func TestPullUpdatesChangedItem(t *testing.T) {
	updated := time.Date(2025, 5, 30, 0, 0, 0, 0, time.UTC)
	h := newHarness(t, newFakeAPI(boardItem("it-1", "Shipped", "Berlin", updated)))

	// Local side last synced after its own update, only the board moved.
	doc, err := h.records.Insert(context.Background(), "orders", map[string]interface{}{
		"status":                  "New",
		"shipping":                map[string]interface{}{"city": "Berlin"},
		mapping.ReservedItemIDKey: "it-1",
	})
	require.NoError(t, err)

	lastSync := h.now
	h.items.add(&models.ItemMapping{
		ItemMappingID:  "im-1",
		BoardMappingID: "bm-1",
		BoardID:        "board-1",
		ItemID:         "it-1",
		Collection:     "orders",
		LocalID:        doc.ID,
		LastSyncAt:     &lastSync,
	})

	res, err := h.syncer.PullBoard(context.Background(), "bm-1", Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, res.RecordsUpdated)
	assert.Zero(t, res.RecordsCreated)
	assert.Zero(t, res.ConflictsDetected)

	got, err := h.records.Get(context.Background(), "orders", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Shipped", got.Fields["status"])
	assert.Equal(t, []string{"im-1"}, h.items.touched)
}

func TestPullIdenticalItemIsANoOp(t *testing.T) {
	updated := time.Date(2025, 5, 30, 0, 0, 0, 0, time.UTC)
	h := newHarness(t, newFakeAPI(boardItem("it-1", "New", "Berlin", updated)))

	doc, err := h.records.Insert(context.Background(), "orders", map[string]interface{}{
		"status":                  "New",
		"shipping":                map[string]interface{}{"city": "Berlin"},
		mapping.ReservedItemIDKey: "it-1",
	})
	require.NoError(t, err)

	lastSync := h.now
	h.items.add(&models.ItemMapping{
		ItemMappingID: "im-1",
		BoardID:       "board-1",
		ItemID:        "it-1",
		Collection:    "orders",
		LocalID:       doc.ID,
		LastSyncAt:    &lastSync,
	})

	res, err := h.syncer.PullBoard(context.Background(), "bm-1", Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, res.RecordsProcessed)
	assert.Zero(t, res.RecordsCreated)
	assert.Zero(t, res.RecordsUpdated)

	// The identity record is still touched so staleness is observable.
	assert.Equal(t, []string{"im-1"}, h.items.touched)

	got, err := h.records.Get(context.Background(), "orders", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.UpdatedAt, got.UpdatedAt)
}

func TestPullManualConflictSkipsWrite(t *testing.T) {
	lastSync := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	bothChanged := lastSync.Add(24 * time.Hour)

	h := newHarness(t, newFakeAPI(boardItem("it-1", "Shipped", "Berlin", bothChanged)))

	// Insert after lastSync so the local side also counts as changed.
	h.now = bothChanged
	doc, err := h.records.Insert(context.Background(), "orders", map[string]interface{}{
		"status":                  "Cancelled",
		"shipping":                map[string]interface{}{"city": "Berlin"},
		mapping.ReservedItemIDKey: "it-1",
	})
	require.NoError(t, err)

	h.items.add(&models.ItemMapping{
		ItemMappingID: "im-1",
		BoardID:       "board-1",
		ItemID:        "it-1",
		Collection:    "orders",
		LocalID:       doc.ID,
		LastSyncAt:    &lastSync,
	})

	res, err := h.syncer.PullBoard(context.Background(), "bm-1", Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, res.ConflictsDetected)
	assert.Zero(t, res.RecordsUpdated)

	// The local document is untouched until someone resolves the conflict.
	got, err := h.records.Get(context.Background(), "orders", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Cancelled", got.Fields["status"])

	require.Len(t, h.conflicts.created, 1)
	c := h.conflicts.created[0]
	assert.Equal(t, models.ConflictDetected, c.Status)
	assert.Equal(t, []string{"status"}, c.ConflictingFields)
	assert.Equal(t, "Cancelled", c.LocalValues["status"])
	assert.Equal(t, "Shipped", c.ExternalValues["status"])
	require.NotNil(t, c.SyncLogID)
	assert.Equal(t, res.SyncLogID, *c.SyncLogID)
}

func TestPullExternalWinsConflictAppliesWrite(t *testing.T) {
	lastSync := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	bothChanged := lastSync.Add(24 * time.Hour)

	h := newHarness(t, newFakeAPI(boardItem("it-1", "Shipped", "Berlin", bothChanged)))
	h.mappings.byID["bm-1"].ConflictPolicy = models.StrategyExternalWins

	h.now = bothChanged
	doc, err := h.records.Insert(context.Background(), "orders", map[string]interface{}{
		"status":                  "Cancelled",
		"shipping":                map[string]interface{}{"city": "Berlin"},
		mapping.ReservedItemIDKey: "it-1",
	})
	require.NoError(t, err)

	h.items.add(&models.ItemMapping{
		ItemMappingID: "im-1",
		BoardID:       "board-1",
		ItemID:        "it-1",
		Collection:    "orders",
		LocalID:       doc.ID,
		LastSyncAt:    &lastSync,
	})

	res, err := h.syncer.PullBoard(context.Background(), "bm-1", Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, res.ConflictsDetected)
	assert.Equal(t, 1, res.RecordsUpdated)

	got, err := h.records.Get(context.Background(), "orders", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Shipped", got.Fields["status"])

	require.Len(t, h.conflicts.created, 1)
	c := h.conflicts.created[0]
	assert.Equal(t, models.ConflictResolvedAuto, c.Status)
	require.NotNil(t, c.ResolvedBy)
	assert.Equal(t, "system", *c.ResolvedBy)
	assert.Equal(t, "Shipped", c.ResolvedValues["status"])
}

func TestPullRecreatesDeletedDocument(t *testing.T) {
	updated := time.Date(2025, 5, 30, 0, 0, 0, 0, time.UTC)
	h := newHarness(t, newFakeAPI(boardItem("it-1", "New", "Berlin", updated)))

	// The mapping points at a document that no longer exists.
	h.items.add(&models.ItemMapping{
		ItemMappingID: "im-1",
		BoardID:       "board-1",
		ItemID:        "it-1",
		Collection:    "orders",
		LocalID:       "gone",
	})

	res, err := h.syncer.PullBoard(context.Background(), "bm-1", Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, res.RecordsCreated)
	assert.Equal(t, []string{"im-1"}, h.items.repointed)

	im, err := h.items.GetByItem(context.Background(), "board-1", "it-1")
	require.NoError(t, err)
	assert.NotEqual(t, "gone", im.LocalID)

	_, err = h.records.Get(context.Background(), "orders", im.LocalID)
	require.NoError(t, err)
}

func TestPullPagesThroughBoard(t *testing.T) {
	updated := time.Date(2025, 5, 30, 0, 0, 0, 0, time.UTC)
	api := newFakeAPI(
		boardItem("it-1", "New", "A", updated),
		boardItem("it-2", "New", "B", updated),
		boardItem("it-3", "New", "C", updated),
	)
	h := newHarness(t, api)

	res, err := h.syncer.PullBoard(context.Background(), "bm-1", Options{PageSize: 2})
	require.NoError(t, err)

	assert.Equal(t, 3, res.RecordsCreated)
	assert.Equal(t, 2, api.listCalls)
}

func TestPullIncludesSubitems(t *testing.T) {
	updated := time.Date(2025, 5, 30, 0, 0, 0, 0, time.UTC)
	api := newFakeAPI(boardItem("it-1", "New", "Berlin", updated))
	sub := boardItem("sub-1", "New", "Berlin", updated)
	api.subitems["it-1"] = []boardapi.Item{sub}

	h := newHarness(t, api)

	res, err := h.syncer.PullBoard(context.Background(), "bm-1", Options{IncludeSubitems: true})
	require.NoError(t, err)
	assert.Equal(t, 2, res.RecordsCreated)

	im, err := h.items.GetByItem(context.Background(), "board-1", "sub-1")
	require.NoError(t, err)
	assert.True(t, im.IsSubitem)
	require.NotNil(t, im.ParentItemID)
	assert.Equal(t, "it-1", *im.ParentItemID)

	doc, err := h.records.Get(context.Background(), "orders", im.LocalID)
	require.NoError(t, err)
	assert.Equal(t, "it-1", doc.Fields[ParentItemIDKey])
}

func TestPullFetchFailureFailsRun(t *testing.T) {
	api := newFakeAPI()
	api.listErr = boardapi.ErrNotFound
	h := newHarness(t, api)

	_, err := h.syncer.PullBoard(context.Background(), "bm-1", Options{})
	require.Error(t, err)

	out := h.mappings.lastOutcome("bm-1")
	assert.Equal(t, models.BoardStatusError, out.status)
	assert.Nil(t, out.syncedAt)
}

func TestPushCreatesUnmappedDocuments(t *testing.T) {
	api := newFakeAPI()
	h := newHarness(t, api)

	doc, err := h.records.Insert(context.Background(), "orders", map[string]interface{}{
		"name":   "Order one",
		"status": "New",
	})
	require.NoError(t, err)

	res, err := h.syncer.PushBoard(context.Background(), "bm-1", Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, res.RecordsProcessed)
	assert.Equal(t, 1, res.ItemsCreated)
	assert.Zero(t, res.ItemsUpdated)
	assert.Equal(t, 1, api.createCalls)
	require.Len(t, api.createdItems, 1)
	assert.Equal(t, "Order one", api.createdItems[0].Name)

	// The created item id is written back for identity tracking.
	got, err := h.records.Get(context.Background(), "orders", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, api.createdItems[0].ID, got.Fields[mapping.ReservedItemIDKey])

	im, err := h.items.GetByLocal(context.Background(), "orders", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, api.createdItems[0].ID, im.ItemID)
}

func TestPushUpdatesMappedDocuments(t *testing.T) {
	api := newFakeAPI()
	h := newHarness(t, api)

	doc, err := h.records.Insert(context.Background(), "orders", map[string]interface{}{
		"status": "Shipped",
	})
	require.NoError(t, err)

	h.items.add(&models.ItemMapping{
		ItemMappingID: "im-1",
		BoardID:       "board-1",
		ItemID:        "it-9",
		Collection:    "orders",
		LocalID:       doc.ID,
	})

	res, err := h.syncer.PushBoard(context.Background(), "bm-1", Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, res.ItemsUpdated)
	assert.Zero(t, res.ItemsCreated)
	assert.Equal(t, []string{"it-9"}, api.updatedIDs)
	assert.Equal(t, []string{"im-1"}, h.items.touched)
}

func TestPushIncrementalWindow(t *testing.T) {
	api := newFakeAPI()
	h := newHarness(t, api)

	// One document changed before the last sync, one after.
	_, err := h.records.Insert(context.Background(), "orders", map[string]interface{}{"status": "Old"})
	require.NoError(t, err)

	cutoff := h.now.Add(time.Hour)
	h.mappings.byID["bm-1"].LastSyncAt = &cutoff

	h.now = cutoff.Add(time.Hour)
	_, err = h.records.Insert(context.Background(), "orders", map[string]interface{}{"status": "Fresh"})
	require.NoError(t, err)

	res, err := h.syncer.PushBoard(context.Background(), "bm-1", Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.RecordsProcessed)

	// A forced run ignores the window and pushes both.
	api2 := newFakeAPI()
	h.api = api2
	h.syncer.newClient = func(in *models.Integration) boardapi.API { return api2 }
	res, err = h.syncer.PushBoard(context.Background(), "bm-1", Options{ForceFullSync: true})
	require.NoError(t, err)
	assert.Equal(t, 2, res.RecordsProcessed)
}

func TestPushSubitemResolvesParent(t *testing.T) {
	api := newFakeAPI()
	h := newHarness(t, api)

	parentID := "bm-1"
	h.mappings.byID["bm-sub"] = &models.BoardMapping{
		MappingID:       "bm-sub",
		IntegrationID:   "int-1",
		BoardID:         "board-1-sub",
		Collection:      "order_lines",
		Direction:       models.DirectionPush,
		Enabled:         true,
		ParentMappingID: &parentID,
	}
	h.mappings.columns["bm-sub"] = []models.ColumnMapping{
		{ColumnID: "qty_col", ColumnType: transcode.ColumnNumbers, FieldPath: "qty", IsEnabled: true},
	}

	// The parent document has already synced and has an item mapping.
	parentDoc, err := h.records.Insert(context.Background(), "orders", map[string]interface{}{"status": "New"})
	require.NoError(t, err)
	h.items.add(&models.ItemMapping{
		ItemMappingID: "im-parent",
		BoardID:       "board-1",
		ItemID:        "it-parent",
		Collection:    "orders",
		LocalID:       parentDoc.ID,
	})

	_, err = h.records.Insert(context.Background(), "order_lines", map[string]interface{}{
		"qty":            3,
		ParentLocalIDKey: parentDoc.ID,
	})
	require.NoError(t, err)

	res, err := h.syncer.PushBoard(context.Background(), "bm-sub", Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, res.ItemsCreated)
	require.Len(t, api.createdItems, 1)
	assert.Equal(t, "it-parent", api.createdItems[0].ParentItemID)
}

func TestPushSubitemWithUnsyncedParentFails(t *testing.T) {
	api := newFakeAPI()
	h := newHarness(t, api)

	parentID := "bm-1"
	h.mappings.byID["bm-sub"] = &models.BoardMapping{
		MappingID:       "bm-sub",
		IntegrationID:   "int-1",
		BoardID:         "board-1-sub",
		Collection:      "order_lines",
		Direction:       models.DirectionPush,
		Enabled:         true,
		ParentMappingID: &parentID,
	}
	h.mappings.columns["bm-sub"] = []models.ColumnMapping{
		{ColumnID: "qty_col", ColumnType: transcode.ColumnNumbers, FieldPath: "qty", IsEnabled: true},
	}

	_, err := h.records.Insert(context.Background(), "order_lines", map[string]interface{}{
		"qty":            3,
		ParentLocalIDKey: "never-synced",
	})
	require.NoError(t, err)

	res, err := h.syncer.PushBoard(context.Background(), "bm-sub", Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, res.RecordsFailed)
	assert.Zero(t, api.createCalls)
	assert.Equal(t, models.BoardStatusPartial, h.mappings.lastOutcome("bm-sub").status)
}

func TestRunConfigurationErrors(t *testing.T) {
	h := newHarness(t, newFakeAPI())
	ctx := context.Background()

	_, err := h.syncer.PullBoard(ctx, "missing", Options{})
	assert.ErrorIs(t, err, ErrConfiguration)

	h.mappings.byID["bm-1"].Enabled = false
	_, err = h.syncer.PullBoard(ctx, "bm-1", Options{})
	assert.ErrorIs(t, err, ErrConfiguration)
	h.mappings.byID["bm-1"].Enabled = true

	h.mappings.byID["bm-1"].Direction = models.DirectionPush
	_, err = h.syncer.PullBoard(ctx, "bm-1", Options{})
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = h.syncer.PushBoard(ctx, "bm-1", Options{})
	assert.NoError(t, err)
	h.mappings.byID["bm-1"].Direction = models.DirectionBidirectional

	h.integrations.byID["int-1"].Enabled = false
	_, err = h.syncer.PullBoard(ctx, "bm-1", Options{})
	assert.ErrorIs(t, err, ErrConfiguration)
	h.integrations.byID["int-1"].Enabled = true

	h.mappings.columns["bm-1"] = nil
	_, err = h.syncer.PullBoard(ctx, "bm-1", Options{})
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestBusyBoardFailsFast(t *testing.T) {
	h := newHarness(t, newFakeAPI())

	release, err := h.syncer.locker.Acquire(context.Background(), "board-1", time.Minute)
	require.NoError(t, err)
	defer release()

	_, err = h.syncer.PullBoard(context.Background(), "bm-1", Options{})
	assert.ErrorIs(t, err, ErrBoardBusy)

	// No sync log is opened for a run that never started.
	assert.Empty(t, h.logs.created)
}

func TestLockReleasedAfterRun(t *testing.T) {
	h := newHarness(t, newFakeAPI())

	_, err := h.syncer.PullBoard(context.Background(), "bm-1", Options{})
	require.NoError(t, err)

	// The lock must be free again for the next run.
	_, err = h.syncer.PullBoard(context.Background(), "bm-1", Options{})
	require.NoError(t, err)
}

func TestSyncAllBoards(t *testing.T) {
	updated := time.Date(2025, 5, 30, 0, 0, 0, 0, time.UTC)
	api := newFakeAPI(boardItem("it-1", "New", "Berlin", updated))
	h := newHarness(t, api)

	h.mappings.byID["bm-pushonly"] = &models.BoardMapping{
		MappingID:     "bm-pushonly",
		IntegrationID: "int-1",
		BoardID:       "board-2",
		Collection:    "invoices",
		Direction:     models.DirectionPush,
		Enabled:       true,
	}
	h.mappings.columns["bm-pushonly"] = []models.ColumnMapping{
		{ColumnID: "status_col", ColumnType: transcode.ColumnStatus, FieldPath: "status", IsEnabled: true},
	}

	res, err := h.syncer.SyncAllBoards(context.Background(), "int-1", Options{})
	require.NoError(t, err)

	assert.Equal(t, "int-1", res.IntegrationID)
	require.Len(t, res.Boards, 2)
	assert.Zero(t, res.Failures)

	byMapping := make(map[string]BoardOutcome, len(res.Boards))
	for _, b := range res.Boards {
		byMapping[b.BoardMappingID] = b
	}

	bidi := byMapping["bm-1"]
	require.NotNil(t, bidi.Pull)
	require.NotNil(t, bidi.Push)
	assert.Equal(t, 1, bidi.Pull.RecordsCreated)

	pushOnly := byMapping["bm-pushonly"]
	assert.Nil(t, pushOnly.Pull)
	require.NotNil(t, pushOnly.Push)
}

func TestSyncAllBoardsCountsFailures(t *testing.T) {
	api := newFakeAPI()
	api.listErr = boardapi.ErrNotFound
	h := newHarness(t, api)

	res, err := h.syncer.SyncAllBoards(context.Background(), "int-1", Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Failures)
	require.Len(t, res.Boards, 1)
	assert.NotEmpty(t, res.Boards[0].Error)
	// Push does not run for a board whose pull already failed.
	assert.Nil(t, res.Boards[0].Push)
}

func TestSyncAllBoardsDisabledIntegration(t *testing.T) {
	h := newHarness(t, newFakeAPI())
	h.integrations.byID["int-1"].Enabled = false

	_, err := h.syncer.SyncAllBoards(context.Background(), "int-1", Options{})
	assert.ErrorIs(t, err, ErrConfiguration)
}
