package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/boardsync/boardsync/internal/boardapi"
	"github.com/boardsync/boardsync/internal/repository"
	"github.com/boardsync/boardsync/pkg/models"
)

type fakeIntegrations struct {
	byID map[string]*models.Integration
}

func (f *fakeIntegrations) Get(ctx context.Context, integrationID string) (*models.Integration, error) {
	in, ok := f.byID[integrationID]
	if !ok {
		return nil, repository.ErrIntegrationNotFound
	}
	copied := *in
	return &copied, nil
}

type syncOutcome struct {
	status   models.BoardSyncStatus
	syncedAt *time.Time
}

type fakeBoardMappings struct {
	byID     map[string]*models.BoardMapping
	columns  map[string][]models.ColumnMapping
	outcomes map[string][]syncOutcome
}

func newFakeBoardMappings() *fakeBoardMappings {
	return &fakeBoardMappings{
		byID:     make(map[string]*models.BoardMapping),
		columns:  make(map[string][]models.ColumnMapping),
		outcomes: make(map[string][]syncOutcome),
	}
}

func (f *fakeBoardMappings) Get(ctx context.Context, mappingID string) (*models.BoardMapping, error) {
	bm, ok := f.byID[mappingID]
	if !ok {
		return nil, repository.ErrBoardMappingNotFound
	}
	copied := *bm
	return &copied, nil
}

func (f *fakeBoardMappings) ListEnabled(ctx context.Context, integrationID string) ([]*models.BoardMapping, error) {
	var out []*models.BoardMapping
	for _, bm := range f.byID {
		if bm.IntegrationID == integrationID && bm.Enabled {
			copied := *bm
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeBoardMappings) ListEnabledColumnMappings(ctx context.Context, boardMappingID string) ([]models.ColumnMapping, error) {
	return f.columns[boardMappingID], nil
}

func (f *fakeBoardMappings) SetSyncOutcome(ctx context.Context, mappingID string, status models.BoardSyncStatus, syncedAt *time.Time) error {
	f.outcomes[mappingID] = append(f.outcomes[mappingID], syncOutcome{status: status, syncedAt: syncedAt})
	return nil
}

func (f *fakeBoardMappings) lastOutcome(mappingID string) syncOutcome {
	outs := f.outcomes[mappingID]
	if len(outs) == 0 {
		return syncOutcome{}
	}
	return outs[len(outs)-1]
}

type fakeItemMappings struct {
	byItem  map[string]*models.ItemMapping
	byLocal map[string]*models.ItemMapping
	seq     int

	touched   []string
	repointed []string
}

func newFakeItemMappings() *fakeItemMappings {
	return &fakeItemMappings{
		byItem:  make(map[string]*models.ItemMapping),
		byLocal: make(map[string]*models.ItemMapping),
	}
}

func itemKey(boardID, itemID string) string { return boardID + "/" + itemID }
func localKey(collection, id string) string { return collection + "/" + id }

func (f *fakeItemMappings) add(im *models.ItemMapping) {
	f.byItem[itemKey(im.BoardID, im.ItemID)] = im
	f.byLocal[localKey(im.Collection, im.LocalID)] = im
}

func (f *fakeItemMappings) Create(ctx context.Context, im *models.ItemMapping) (*models.ItemMapping, error) {
	f.seq++
	copied := *im
	if copied.ItemMappingID == "" {
		copied.ItemMappingID = fmt.Sprintf("im-%d", f.seq)
	}
	f.add(&copied)
	return &copied, nil
}

func (f *fakeItemMappings) GetByItem(ctx context.Context, boardID, itemID string) (*models.ItemMapping, error) {
	im, ok := f.byItem[itemKey(boardID, itemID)]
	if !ok {
		return nil, repository.ErrItemMappingNotFound
	}
	copied := *im
	return &copied, nil
}

func (f *fakeItemMappings) GetByLocal(ctx context.Context, collection, localID string) (*models.ItemMapping, error) {
	im, ok := f.byLocal[localKey(collection, localID)]
	if !ok {
		return nil, repository.ErrItemMappingNotFound
	}
	copied := *im
	return &copied, nil
}

func (f *fakeItemMappings) Touch(ctx context.Context, itemMappingID, status string, syncedAt time.Time) error {
	f.touched = append(f.touched, itemMappingID)
	return nil
}

func (f *fakeItemMappings) Repoint(ctx context.Context, itemMappingID, localID string, syncedAt time.Time) error {
	f.repointed = append(f.repointed, itemMappingID)
	for _, im := range f.byItem {
		if im.ItemMappingID == itemMappingID {
			delete(f.byLocal, localKey(im.Collection, im.LocalID))
			im.LocalID = localID
			f.byLocal[localKey(im.Collection, localID)] = im
			return nil
		}
	}
	return repository.ErrItemMappingNotFound
}

type fakeConflicts struct {
	created []*models.Conflict
}

func (f *fakeConflicts) Create(ctx context.Context, c *models.Conflict) (*models.Conflict, error) {
	copied := *c
	if copied.ConflictID == "" {
		copied.ConflictID = fmt.Sprintf("c-%d", len(f.created)+1)
	}
	f.created = append(f.created, &copied)
	return &copied, nil
}

type fakeLogStore struct {
	created []*models.SyncLog
	updated int
}

func (s *fakeLogStore) CreateSyncLog(ctx context.Context, log *models.SyncLog) error {
	copied := *log
	s.created = append(s.created, &copied)
	return nil
}

func (s *fakeLogStore) UpdateSyncLog(ctx context.Context, log *models.SyncLog) error {
	s.updated++
	return nil
}

// fakeAPI is an in-memory board the syncer runs against.
type fakeAPI struct {
	items    []boardapi.Item
	subitems map[string][]boardapi.Item

	listErr   error
	createErr error
	updateErr error

	listCalls    int
	createCalls  int
	updateCalls  int
	createdItems []boardapi.Item
	updatedIDs   []string
}

func newFakeAPI(items ...boardapi.Item) *fakeAPI {
	return &fakeAPI{items: items, subitems: make(map[string][]boardapi.Item)}
}

func (f *fakeAPI) TestConnection(ctx context.Context) (*boardapi.Account, error) {
	return &boardapi.Account{}, nil
}

func (f *fakeAPI) ListWorkspaces(ctx context.Context) ([]boardapi.Workspace, error) {
	return nil, nil
}

func (f *fakeAPI) ListBoards(ctx context.Context, workspaceID string) ([]boardapi.Board, error) {
	return nil, nil
}

func (f *fakeAPI) ListColumns(ctx context.Context, boardID string) ([]boardapi.Column, error) {
	return nil, nil
}

func (f *fakeAPI) CountItems(ctx context.Context, boardID string) (int, error) {
	return len(f.items), nil
}

func (f *fakeAPI) ListItems(ctx context.Context, boardID string, page, pageSize int, updatedSince *time.Time) (*boardapi.ItemPage, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	start := (page - 1) * pageSize
	if start >= len(f.items) {
		return &boardapi.ItemPage{}, nil
	}
	end := start + pageSize
	if end > len(f.items) {
		end = len(f.items)
	}
	return &boardapi.ItemPage{
		Items:   f.items[start:end],
		HasMore: end < len(f.items),
	}, nil
}

func (f *fakeAPI) GetItem(ctx context.Context, itemID string) (*boardapi.Item, error) {
	for i := range f.items {
		if f.items[i].ID == itemID {
			return &f.items[i], nil
		}
	}
	return nil, boardapi.ErrNotFound
}

func (f *fakeAPI) ListSubitems(ctx context.Context, parentItemID string) ([]boardapi.Item, error) {
	return f.subitems[parentItemID], nil
}

func (f *fakeAPI) CreateItem(ctx context.Context, boardID, name string, columnValues map[string]interface{}) (*boardapi.Item, error) {
	f.createCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	item := boardapi.Item{
		ID:      fmt.Sprintf("it-new-%d", f.createCalls),
		Name:    name,
		BoardID: boardID,
	}
	f.createdItems = append(f.createdItems, item)
	return &item, nil
}

func (f *fakeAPI) CreateSubitem(ctx context.Context, parentItemID, name string, columnValues map[string]interface{}) (*boardapi.Item, error) {
	f.createCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	item := boardapi.Item{
		ID:           fmt.Sprintf("sub-new-%d", f.createCalls),
		Name:         name,
		ParentItemID: parentItemID,
	}
	f.createdItems = append(f.createdItems, item)
	return &item, nil
}

func (f *fakeAPI) UpdateItem(ctx context.Context, itemID, boardID string, columnValues map[string]interface{}) (*boardapi.Item, error) {
	f.updateCalls++
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.updatedIDs = append(f.updatedIDs, itemID)
	return &boardapi.Item{ID: itemID, BoardID: boardID}, nil
}
