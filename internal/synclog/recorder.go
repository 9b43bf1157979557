// Package synclog records the append-only progress, phase, error and
// metric trail of one synchronization run.
package synclog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/boardsync/boardsync/pkg/models"
)

// Store persists sync logs. Trails are native structs here; the
// Postgres implementation serializes them to JSONB at the boundary.
type Store interface {
	CreateSyncLog(ctx context.Context, log *models.SyncLog) error
	UpdateSyncLog(ctx context.Context, log *models.SyncLog) error
}

// Recorder owns one SyncLog for the duration of a run. It is mutated
// incrementally and finalized exactly once; all methods are safe for
// use from the run's worker goroutines.
type Recorder struct {
	mu    sync.Mutex
	store Store
	log   *models.SyncLog
	now   func() time.Time

	finalized bool
}

// NewRecorder creates a recorder for one run. boardMappingID may be
// empty for integration-wide operations.
func NewRecorder(store Store, integrationID, boardMappingID, operation string) *Recorder {
	log := &models.SyncLog{
		SyncLogID:     uuid.New().String(),
		IntegrationID: integrationID,
		Operation:     operation,
		Status:        models.SyncLogRunning,
	}
	if boardMappingID != "" {
		log.BoardMappingID = &boardMappingID
	}
	return &Recorder{store: store, log: log, now: time.Now}
}

// ID returns the sync log id for result reporting.
func (r *Recorder) ID() string {
	return r.log.SyncLogID
}

// Start persists the initial running record.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	r.log.StartedAt = r.now()
	r.mu.Unlock()

	if err := r.store.CreateSyncLog(ctx, r.log); err != nil {
		return fmt.Errorf("failed to create sync log: %w", err)
	}
	return nil
}

// Phase opens a new named phase, closing the previous one.
func (r *Recorder) Phase(ctx context.Context, name string) {
	r.mu.Lock()
	now := r.now()
	r.closeOpenPhase(now)
	r.log.Phases = append(r.log.Phases, models.PhaseEntry{Name: name, StartedAt: now})
	r.mu.Unlock()

	r.flush(ctx)
}

// closeOpenPhase stamps the end of the last phase. Caller holds the lock.
func (r *Recorder) closeOpenPhase(now time.Time) {
	if n := len(r.log.Phases); n > 0 && r.log.Phases[n-1].EndedAt == nil {
		ended := now
		r.log.Phases[n-1].EndedAt = &ended
	}
}

// Message appends a progress message to the trail.
func (r *Recorder) Message(ctx context.Context, format string, args ...interface{}) {
	r.mu.Lock()
	r.log.Messages = append(r.log.Messages, models.TrailEntry{
		Time:    r.now(),
		Message: fmt.Sprintf(format, args...),
	})
	r.mu.Unlock()

	r.flush(ctx)
}

// Error appends an error to the trail without failing the run.
func (r *Recorder) Error(ctx context.Context, format string, args ...interface{}) {
	r.mu.Lock()
	r.log.Errors = append(r.log.Errors, models.TrailEntry{
		Time:    r.now(),
		Message: fmt.Sprintf(format, args...),
	})
	r.mu.Unlock()

	r.flush(ctx)
}

// Metric appends one named measurement.
func (r *Recorder) Metric(ctx context.Context, name string, value float64) {
	r.mu.Lock()
	r.log.Metrics = append(r.log.Metrics, models.MetricEntry{
		Time:  r.now(),
		Name:  name,
		Value: value,
	})
	r.mu.Unlock()

	r.flush(ctx)
}

// AddCounts increments the run counters.
func (r *Recorder) AddCounts(processed, created, updated, failed int) {
	r.mu.Lock()
	r.log.Processed += processed
	r.log.Created += created
	r.log.Updated += updated
	r.log.Failed += failed
	r.mu.Unlock()
}

// Counts returns the current counters.
func (r *Recorder) Counts() (processed, created, updated, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.log.Processed, r.log.Created, r.log.Updated, r.log.Failed
}

// Finalize closes the log with a status derived from the counters:
// failed runs say so explicitly, otherwise any per-item failure yields
// completed_with_errors. Finalize is a no-op after the first call.
func (r *Recorder) Finalize(ctx context.Context, runErr error) {
	r.mu.Lock()
	if r.finalized {
		r.mu.Unlock()
		return
	}
	r.finalized = true

	now := r.now()
	r.closeOpenPhase(now)
	r.log.EndedAt = &now

	switch {
	case runErr != nil:
		r.log.Status = models.SyncLogFailed
		r.log.Errors = append(r.log.Errors, models.TrailEntry{Time: now, Message: runErr.Error()})
	case r.log.Failed > 0:
		r.log.Status = models.SyncLogWithErrors
	default:
		r.log.Status = models.SyncLogCompleted
	}
	r.mu.Unlock()

	r.flush(ctx)
}

// Snapshot returns a copy of the current log state.
func (r *Recorder) Snapshot() models.SyncLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.log
}

func (r *Recorder) flush(ctx context.Context) {
	r.mu.Lock()
	snapshot := *r.log
	r.mu.Unlock()

	// Persistence of trail updates is best effort; the run must not
	// fail because its own audit write did.
	_ = r.store.UpdateSyncLog(ctx, &snapshot)
}
