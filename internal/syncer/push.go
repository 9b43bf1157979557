package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/boardsync/boardsync/internal/batch"
	"github.com/boardsync/boardsync/internal/boardapi"
	"github.com/boardsync/boardsync/internal/mapping"
	"github.com/boardsync/boardsync/internal/repository"
	"github.com/boardsync/boardsync/internal/store"
	"github.com/boardsync/boardsync/internal/synclog"
	"github.com/boardsync/boardsync/pkg/models"
)

// ParentLocalIDKey is the document field linking a locally created
// subitem to its parent document before either side has an external id.
const ParentLocalIDKey = "_parentLocalID"

// pushCandidate is one local document prepared for the external API.
type pushCandidate struct {
	doc      store.Record
	name     string
	colVals  map[string]interface{}
	mapping  *models.ItemMapping
	parentID string
}

// PushBoard sends locally changed documents of one board mapping to the
// external board. Existing items are updated in rate-limited batches;
// unmapped documents become new items.
func (s *Syncer) PushBoard(ctx context.Context, boardMappingID string, opts Options) (*PushResult, error) {
	run, err := s.resolveRun(ctx, boardMappingID, runPush)
	if err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, run.mapping.BoardID, s.lockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	rec := synclog.NewRecorder(s.syncLogs, run.integration.IntegrationID, run.mapping.MappingID, "push")
	if err := rec.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to open sync log: %w", err)
	}
	if err := s.boardMappings.SetSyncOutcome(ctx, boardMappingID, models.BoardStatusSyncing, nil); err != nil {
		s.logf("failed to mark mapping %s syncing: %v", boardMappingID, err)
	}

	result, runErr := s.push(ctx, run, rec, opts)
	result.SyncLogID = rec.ID()
	s.finishRun(ctx, rec, boardMappingID, result.RecordsFailed, runErr)

	if runErr != nil {
		return result, runErr
	}
	s.infof("push for board %s finished: %d processed, %d created, %d updated, %d failed",
		run.mapping.BoardID, result.RecordsProcessed, result.ItemsCreated,
		result.ItemsUpdated, result.RecordsFailed)
	return result, nil
}

func (s *Syncer) push(ctx context.Context, run *runContext, rec *synclog.Recorder, opts Options) (*PushResult, error) {
	res := &PushResult{}

	rec.Phase(ctx, "collecting")
	var filters []store.Filter
	if !opts.ForceFullSync && run.mapping.LastSyncAt != nil {
		filters = append(filters, store.Filter{Field: "_updatedAt", Op: store.OpGt, Value: *run.mapping.LastSyncAt})
	}
	docs, err := s.records.Query(ctx, run.mapping.Collection, "by_updated", filters, 0)
	if err != nil {
		rec.Error(ctx, "query failed: %v", err)
		return res, fmt.Errorf("failed to query collection %s: %w", run.mapping.Collection, err)
	}
	rec.Message(ctx, "collected %d changed documents from %s", len(docs), run.mapping.Collection)

	rec.Phase(ctx, "transforming")
	var creates, updates []*pushCandidate
	for i := range docs {
		cand, err := s.preparePush(ctx, run, &docs[i])
		if err != nil {
			rec.Error(ctx, "document %s: %v", docs[i].ID, err)
			rec.AddCounts(1, 0, 0, 1)
			res.RecordsProcessed++
			res.RecordsFailed++
			continue
		}
		if cand.mapping != nil {
			updates = append(updates, cand)
		} else {
			creates = append(creates, cand)
		}
	}

	rec.Phase(ctx, "pushing")
	cfg := batch.Config{BatchSize: opts.BatchSize}
	if cfg.BatchSize <= 0 && run.integration.BatchSize != nil {
		cfg.BatchSize = *run.integration.BatchSize
	}
	execOpts := []batch.ExecutorOption{batch.WithLogger(s.logger)}
	if s.window != nil {
		execOpts = append(execOpts, batch.WithWindow(s.window, run.integration.IntegrationID))
	}
	exec := batch.NewExecutor(cfg, execOpts...)

	byID := make(map[string]*pushCandidate, len(creates)+len(updates))
	toOps := func(cands []*pushCandidate) []batch.Operation {
		ops := make([]batch.Operation, 0, len(cands))
		for _, c := range cands {
			byID[c.doc.ID] = c
			ops = append(ops, batch.Operation{ID: c.doc.ID, Payload: c})
		}
		return ops
	}

	createReport := exec.Execute(ctx, toOps(creates), s.createFunc(run))
	s.settlePush(ctx, run, rec, res, createReport, byID, true)

	updateReport := exec.Execute(ctx, toOps(updates), s.updateFunc(run))
	s.settlePush(ctx, run, rec, res, updateReport, byID, false)

	res.Batches = createReport.Batches + updateReport.Batches
	res.RateLimitHits = createReport.RateLimitHits + updateReport.RateLimitHits
	rec.Metric(ctx, "api_calls", float64(exec.Tracker().CallCount()))
	rec.Metric(ctx, "batches", float64(res.Batches))
	rec.Metric(ctx, "rate_limit_hits", float64(res.RateLimitHits))

	rec.Phase(ctx, "finalized")
	return res, ctx.Err()
}

// preparePush transforms one document and decides create versus update
// by identity lookup. Subitem documents must resolve a parent item id.
func (s *Syncer) preparePush(ctx context.Context, run *runContext, doc *store.Record) (*pushCandidate, error) {
	name, colVals := mapping.LocalToExternal(doc.Fields, run.columns)
	cand := &pushCandidate{doc: *doc, name: name, colVals: colVals}

	im, err := s.itemMappings.GetByLocal(ctx, run.mapping.Collection, doc.ID)
	if err == nil {
		cand.mapping = im
		return cand, nil
	}
	if !errors.Is(err, repository.ErrItemMappingNotFound) {
		return nil, fmt.Errorf("item mapping lookup: %w", err)
	}

	if run.mapping.ParentMappingID != nil {
		parentID, err := s.resolveParentItem(ctx, run, doc)
		if err != nil {
			return nil, err
		}
		cand.parentID = parentID
	}
	return cand, nil
}

// resolveParentItem finds the external id of a subitem's parent, either
// directly from the document or through the parent mapping's identity
// records. A parent that has not synced yet fails the document.
func (s *Syncer) resolveParentItem(ctx context.Context, run *runContext, doc *store.Record) (string, error) {
	if v, ok := doc.Fields[ParentItemIDKey].(string); ok && v != "" {
		return v, nil
	}

	parentLocal, _ := doc.Fields[ParentLocalIDKey].(string)
	if parentLocal == "" {
		return "", fmt.Errorf("subitem document has no parent reference")
	}
	parentMapping, err := s.boardMappings.Get(ctx, *run.mapping.ParentMappingID)
	if err != nil {
		return "", fmt.Errorf("parent board mapping: %w", err)
	}
	im, err := s.itemMappings.GetByLocal(ctx, parentMapping.Collection, parentLocal)
	if err != nil {
		return "", fmt.Errorf("parent item %s not synced yet: %w", parentLocal, err)
	}
	return im.ItemID, nil
}

// createFunc returns the batch function for item creation. Completed
// creates are remembered so a rate-limit retry never duplicates items.
func (s *Syncer) createFunc(run *runContext) batch.BatchFunc {
	done := make(map[string]batch.Result)
	return func(ctx context.Context, ops []batch.Operation) ([]batch.Result, error) {
		results := make([]batch.Result, 0, len(ops))
		for _, op := range ops {
			if r, ok := done[op.ID]; ok {
				results = append(results, r)
				continue
			}
			pc := op.Payload.(*pushCandidate)
			var item *boardapi.Item
			var err error
			if pc.parentID != "" {
				item, err = run.api.CreateSubitem(ctx, pc.parentID, pc.name, pc.colVals)
			} else {
				item, err = run.api.CreateItem(ctx, run.mapping.BoardID, pc.name, pc.colVals)
			}
			if err != nil {
				if boardapi.IsRateLimit(err) {
					return results, err
				}
				results = append(results, batch.Result{ID: op.ID, Message: err.Error()})
				continue
			}
			r := batch.Result{ID: op.ID, Success: true, Output: item}
			done[op.ID] = r
			results = append(results, r)
		}
		return results, nil
	}
}

// updateFunc returns the batch function for item updates.
func (s *Syncer) updateFunc(run *runContext) batch.BatchFunc {
	done := make(map[string]batch.Result)
	return func(ctx context.Context, ops []batch.Operation) ([]batch.Result, error) {
		results := make([]batch.Result, 0, len(ops))
		for _, op := range ops {
			if r, ok := done[op.ID]; ok {
				results = append(results, r)
				continue
			}
			pc := op.Payload.(*pushCandidate)
			item, err := run.api.UpdateItem(ctx, pc.mapping.ItemID, run.mapping.BoardID, pc.colVals)
			if err != nil {
				if boardapi.IsRateLimit(err) {
					return results, err
				}
				results = append(results, batch.Result{ID: op.ID, Message: err.Error()})
				continue
			}
			r := batch.Result{ID: op.ID, Success: true, Output: item}
			done[op.ID] = r
			results = append(results, r)
		}
		return results, nil
	}
}

// settlePush turns executor results into identity records and counts.
func (s *Syncer) settlePush(ctx context.Context, run *runContext, rec *synclog.Recorder, res *PushResult, report batch.Report, byID map[string]*pushCandidate, created bool) {
	now := s.now()
	for _, r := range report.Results {
		cand := byID[r.ID]
		if cand == nil {
			continue
		}
		res.RecordsProcessed++

		if !r.Success {
			rec.Error(ctx, "document %s: %s", r.ID, r.Message)
			rec.AddCounts(1, 0, 0, 1)
			res.RecordsFailed++
			continue
		}

		if created {
			item, _ := r.Output.(*boardapi.Item)
			if item == nil {
				rec.Error(ctx, "document %s: missing created item", r.ID)
				rec.AddCounts(1, 0, 0, 1)
				res.RecordsFailed++
				continue
			}
			if _, err := s.records.Patch(ctx, run.mapping.Collection, cand.doc.ID, map[string]interface{}{
				mapping.ReservedItemIDKey: item.ID,
			}); err != nil {
				s.logf("failed to store external id on document %s: %v", cand.doc.ID, err)
			}
			im := &models.ItemMapping{
				BoardMappingID: run.mapping.MappingID,
				BoardID:        run.mapping.BoardID,
				ItemID:         item.ID,
				Collection:     run.mapping.Collection,
				LocalID:        cand.doc.ID,
				SyncStatus:     "synced",
				LastSyncAt:     &now,
				IsSubitem:      cand.parentID != "",
			}
			if cand.parentID != "" {
				parent := cand.parentID
				im.ParentItemID = &parent
			}
			if _, err := s.itemMappings.Create(ctx, im); err != nil {
				rec.Error(ctx, "document %s: create item mapping: %v", r.ID, err)
				rec.AddCounts(1, 0, 0, 1)
				res.RecordsFailed++
				continue
			}
			rec.AddCounts(1, 1, 0, 0)
			res.ItemsCreated++
			continue
		}

		s.touch(ctx, cand.mapping, now)
		rec.AddCounts(1, 0, 1, 0)
		res.ItemsUpdated++
	}
}
