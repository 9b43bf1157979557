// Package syncer drives pull and push runs for one board mapping at a
// time. A run resolves its configuration up front, takes a per-board
// lock, and records everything it does into a sync log.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/boardsync/boardsync/internal/batch"
	"github.com/boardsync/boardsync/internal/boardapi"
	"github.com/boardsync/boardsync/internal/store"
	"github.com/boardsync/boardsync/internal/synclog"
	"github.com/boardsync/boardsync/pkg/logger"
	"github.com/boardsync/boardsync/pkg/models"
)

// ErrConfiguration marks a run that failed before any external I/O
// because its integration, mapping, or column configuration is unusable.
var ErrConfiguration = errors.New("sync configuration error")

// IntegrationStore is the integration metadata the orchestrator reads.
type IntegrationStore interface {
	Get(ctx context.Context, integrationID string) (*models.Integration, error)
}

// BoardMappingStore is the board and column mapping metadata surface.
type BoardMappingStore interface {
	Get(ctx context.Context, mappingID string) (*models.BoardMapping, error)
	ListEnabled(ctx context.Context, integrationID string) ([]*models.BoardMapping, error)
	ListEnabledColumnMappings(ctx context.Context, boardMappingID string) ([]models.ColumnMapping, error)
	SetSyncOutcome(ctx context.Context, mappingID string, status models.BoardSyncStatus, syncedAt *time.Time) error
}

// ItemMappingStore is the identity bridge between local documents and
// external items.
type ItemMappingStore interface {
	Create(ctx context.Context, im *models.ItemMapping) (*models.ItemMapping, error)
	GetByItem(ctx context.Context, boardID, itemID string) (*models.ItemMapping, error)
	GetByLocal(ctx context.Context, collection, localID string) (*models.ItemMapping, error)
	Touch(ctx context.Context, itemMappingID, status string, syncedAt time.Time) error
	Repoint(ctx context.Context, itemMappingID, localID string, syncedAt time.Time) error
}

// ConflictStore records detected divergences.
type ConflictStore interface {
	Create(ctx context.Context, c *models.Conflict) (*models.Conflict, error)
}

// ClientFactory builds an API client for one integration.
type ClientFactory func(integration *models.Integration) boardapi.API

// Deps carries everything a Syncer needs. Locker, NewClient, and
// Logger are optional.
type Deps struct {
	Integrations  IntegrationStore
	BoardMappings BoardMappingStore
	ItemMappings  ItemMappingStore
	Conflicts     ConflictStore
	Records       store.RecordStore
	SyncLogs      synclog.Store
	Locker        Locker
	Window        batch.Window
	Logger        *logger.Logger
	NewClient     ClientFactory
}

// Syncer orchestrates pull and push runs.
type Syncer struct {
	integrations  IntegrationStore
	boardMappings BoardMappingStore
	itemMappings  ItemMappingStore
	conflicts     ConflictStore
	records       store.RecordStore
	syncLogs      synclog.Store
	locker        Locker
	window        batch.Window
	logger        *logger.Logger
	newClient     ClientFactory
	lockTTL       time.Duration
	now           func() time.Time
}

// New creates a Syncer from its dependencies.
func New(deps Deps) *Syncer {
	s := &Syncer{
		integrations:  deps.Integrations,
		boardMappings: deps.BoardMappings,
		itemMappings:  deps.ItemMappings,
		conflicts:     deps.Conflicts,
		records:       deps.Records,
		syncLogs:      deps.SyncLogs,
		locker:        deps.Locker,
		window:        deps.Window,
		logger:        deps.Logger,
		newClient:     deps.NewClient,
		lockTTL:       5 * time.Minute,
		now:           time.Now,
	}
	if s.locker == nil {
		s.locker = NewMemoryLocker()
	}
	if s.newClient == nil {
		s.newClient = DefaultClientFactory
	}
	return s
}

// DefaultClientFactory builds an API client from an integration's key
// and rate limit settings.
func DefaultClientFactory(in *models.Integration) boardapi.API {
	var opts []boardapi.Option
	if in.RateLimitPerMin != nil && *in.RateLimitPerMin > 0 {
		opts = append(opts, boardapi.WithRequestsPerMinute(*in.RateLimitPerMin))
	}
	return boardapi.NewClient(in.APIKey, opts...)
}

// Options tune one run. Zero values fall back to the integration's
// settings and the package defaults.
type Options struct {
	ForceFullSync   bool
	IncludeSubitems bool
	PageSize        int
	BatchSize       int
}

// PullResult summarizes one pull run.
type PullResult struct {
	SyncLogID         string `json:"sync_log_id"`
	RecordsProcessed  int    `json:"records_processed"`
	RecordsCreated    int    `json:"records_created"`
	RecordsUpdated    int    `json:"records_updated"`
	RecordsFailed     int    `json:"records_failed"`
	ConflictsDetected int    `json:"conflicts_detected"`
}

// PushResult summarizes one push run.
type PushResult struct {
	SyncLogID        string `json:"sync_log_id"`
	RecordsProcessed int    `json:"records_processed"`
	ItemsCreated     int    `json:"items_created"`
	ItemsUpdated     int    `json:"items_updated"`
	RecordsFailed    int    `json:"records_failed"`
	Batches          int    `json:"batches"`
	RateLimitHits    int    `json:"rate_limit_hits"`
}

// runContext is the resolved configuration one run operates on.
type runContext struct {
	integration *models.Integration
	mapping     *models.BoardMapping
	columns     []models.ColumnMapping
	api         boardapi.API
}

type runKind string

const (
	runPull runKind = "pull"
	runPush runKind = "push"
)

// resolveRun validates the full configuration chain before any I/O
// against the external API. Every failure here wraps ErrConfiguration.
func (s *Syncer) resolveRun(ctx context.Context, boardMappingID string, kind runKind) (*runContext, error) {
	bm, err := s.boardMappings.Get(ctx, boardMappingID)
	if err != nil {
		return nil, fmt.Errorf("board mapping %s: %v: %w", boardMappingID, err, ErrConfiguration)
	}
	if !bm.Enabled {
		return nil, fmt.Errorf("board mapping %s is disabled: %w", boardMappingID, ErrConfiguration)
	}
	if kind == runPull && !bm.Direction.AllowsPull() {
		return nil, fmt.Errorf("board mapping %s does not allow pull: %w", boardMappingID, ErrConfiguration)
	}
	if kind == runPush && !bm.Direction.AllowsPush() {
		return nil, fmt.Errorf("board mapping %s does not allow push: %w", boardMappingID, ErrConfiguration)
	}

	in, err := s.integrations.Get(ctx, bm.IntegrationID)
	if err != nil {
		return nil, fmt.Errorf("integration %s: %v: %w", bm.IntegrationID, err, ErrConfiguration)
	}
	if !in.Enabled {
		return nil, fmt.Errorf("integration %s is disabled: %w", in.IntegrationID, ErrConfiguration)
	}

	columns, err := s.boardMappings.ListEnabledColumnMappings(ctx, boardMappingID)
	if err != nil {
		return nil, fmt.Errorf("column mappings for %s: %v: %w", boardMappingID, err, ErrConfiguration)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("board mapping %s has no enabled column mappings: %w", boardMappingID, ErrConfiguration)
	}

	return &runContext{
		integration: in,
		mapping:     bm,
		columns:     columns,
		api:         s.newClient(in),
	}, nil
}

// finishRun finalizes the sync log and writes the board mapping's
// outcome. The board keeps its previous lastSyncAt on a failed run.
func (s *Syncer) finishRun(ctx context.Context, rec *synclog.Recorder, mappingID string, failed int, runErr error) {
	rec.Finalize(ctx, runErr)

	now := s.now()
	status := models.BoardStatusSynced
	syncedAt := &now
	switch {
	case runErr != nil:
		status = models.BoardStatusError
		syncedAt = nil
	case failed > 0:
		status = models.BoardStatusPartial
	}
	if err := s.boardMappings.SetSyncOutcome(ctx, mappingID, status, syncedAt); err != nil {
		s.logf("failed to record sync outcome for mapping %s: %v", mappingID, err)
	}
}

func (s *Syncer) logf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Warnf(format, args...)
	}
}

func (s *Syncer) infof(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Infof(format, args...)
	}
}

// BoardOutcome is the result of one board inside a sync-all run.
type BoardOutcome struct {
	BoardMappingID string      `json:"board_mapping_id"`
	BoardID        string      `json:"board_id"`
	Pull           *PullResult `json:"pull,omitempty"`
	Push           *PushResult `json:"push,omitempty"`
	Error          string      `json:"error,omitempty"`
}

// SyncAllResult aggregates a sync-all run over one integration.
type SyncAllResult struct {
	IntegrationID string         `json:"integration_id"`
	Boards        []BoardOutcome `json:"boards"`
	Failures      int            `json:"failures"`
}

// SyncAllBoards runs every enabled board mapping of an integration in
// the directions it allows: pull first, then push. Boards fail
// independently; a busy board is reported, not retried.
func (s *Syncer) SyncAllBoards(ctx context.Context, integrationID string, opts Options) (*SyncAllResult, error) {
	in, err := s.integrations.Get(ctx, integrationID)
	if err != nil {
		return nil, fmt.Errorf("integration %s: %v: %w", integrationID, err, ErrConfiguration)
	}
	if !in.Enabled {
		return nil, fmt.Errorf("integration %s is disabled: %w", integrationID, ErrConfiguration)
	}

	mappings, err := s.boardMappings.ListEnabled(ctx, integrationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list board mappings: %w", err)
	}

	result := &SyncAllResult{IntegrationID: integrationID}
	for _, bm := range mappings {
		outcome := BoardOutcome{BoardMappingID: bm.MappingID, BoardID: bm.BoardID}

		if bm.Direction.AllowsPull() {
			pull, err := s.PullBoard(ctx, bm.MappingID, opts)
			outcome.Pull = pull
			if err != nil {
				outcome.Error = err.Error()
			}
		}
		if outcome.Error == "" && bm.Direction.AllowsPush() {
			push, err := s.PushBoard(ctx, bm.MappingID, opts)
			outcome.Push = push
			if err != nil {
				outcome.Error = err.Error()
			}
		}
		if outcome.Error != "" {
			result.Failures++
		}
		result.Boards = append(result.Boards, outcome)

		if ctx.Err() != nil {
			return result, ctx.Err()
		}
	}
	return result, nil
}
