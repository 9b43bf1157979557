package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/boardsync/boardsync/internal/batch"
	"github.com/boardsync/boardsync/internal/boardapi"
	"github.com/boardsync/boardsync/internal/conflict"
	"github.com/boardsync/boardsync/internal/mapping"
	"github.com/boardsync/boardsync/internal/repository"
	"github.com/boardsync/boardsync/internal/store"
	"github.com/boardsync/boardsync/internal/synclog"
	"github.com/boardsync/boardsync/pkg/models"
)

// ParentItemIDKey is the document field linking a pulled subitem to the
// external id of its parent item.
const ParentItemIDKey = "_parentItemID"

// pull action kinds decided during reconciliation.
const (
	actCreate   = "create"
	actRecreate = "recreate"
	actUpdate   = "update"
	actTouch    = "touch"
	actSkip     = "skip"
)

// pullCandidate is one fetched item with its transformed field map.
type pullCandidate struct {
	item   boardapi.Item
	parent string
	fields map[string]interface{}
}

// pullAction is the write decided for one candidate.
type pullAction struct {
	kind       string
	candidate  *pullCandidate
	mapping    *models.ItemMapping
	patch      map[string]interface{}
	conflicted bool
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// PullBoard fetches external items for one board mapping and reconciles
// them into the local collection. The run is serialized per board and
// fully recorded in a sync log.
func (s *Syncer) PullBoard(ctx context.Context, boardMappingID string, opts Options) (*PullResult, error) {
	run, err := s.resolveRun(ctx, boardMappingID, runPull)
	if err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, run.mapping.BoardID, s.lockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	rec := synclog.NewRecorder(s.syncLogs, run.integration.IntegrationID, run.mapping.MappingID, "pull")
	if err := rec.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to open sync log: %w", err)
	}
	if err := s.boardMappings.SetSyncOutcome(ctx, boardMappingID, models.BoardStatusSyncing, nil); err != nil {
		s.logf("failed to mark mapping %s syncing: %v", boardMappingID, err)
	}

	result, runErr := s.pull(ctx, run, rec, opts)
	result.SyncLogID = rec.ID()
	s.finishRun(ctx, rec, boardMappingID, result.RecordsFailed, runErr)

	if runErr != nil {
		return result, runErr
	}
	s.infof("pull for board %s finished: %d processed, %d created, %d updated, %d failed, %d conflicts",
		run.mapping.BoardID, result.RecordsProcessed, result.RecordsCreated,
		result.RecordsUpdated, result.RecordsFailed, result.ConflictsDetected)
	return result, nil
}

func (s *Syncer) pull(ctx context.Context, run *runContext, rec *synclog.Recorder, opts Options) (*PullResult, error) {
	res := &PullResult{}

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = run.integration.EffectivePageSize(batch.DefaultPageSize)
	}
	var updatedSince *time.Time
	if !opts.ForceFullSync && run.mapping.LastSyncAt != nil {
		updatedSince = run.mapping.LastSyncAt
	}

	rec.Phase(ctx, "fetching")
	items, err := s.fetchItems(ctx, run, rec, pageSize, updatedSince, opts.IncludeSubitems)
	if err != nil {
		rec.Error(ctx, "fetch failed: %v", err)
		return res, fmt.Errorf("failed to fetch board items: %w", err)
	}
	rec.Message(ctx, "fetched %d items from board %s", len(items), run.mapping.BoardID)
	rec.Metric(ctx, "items_fetched", float64(len(items)))

	rec.Phase(ctx, "transforming")
	candidates := make([]*pullCandidate, 0, len(items))
	for i := range items {
		fields := mapping.ExternalToLocal(&items[i], run.columns)
		cand := &pullCandidate{item: items[i], parent: items[i].ParentItemID, fields: fields}
		if cand.parent != "" {
			cand.fields[ParentItemIDKey] = cand.parent
		}
		candidates = append(candidates, cand)
	}

	rec.Phase(ctx, "reconciling")
	actions := make([]*pullAction, 0, len(candidates))
	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		action, err := s.decidePull(ctx, run, rec, cand)
		if err != nil {
			rec.Error(ctx, "item %s: %v", cand.item.ID, err)
			rec.AddCounts(1, 0, 0, 1)
			res.RecordsProcessed++
			res.RecordsFailed++
			continue
		}
		if action.conflicted {
			res.ConflictsDetected++
		}
		actions = append(actions, action)
	}

	rec.Phase(ctx, "persisting")
	for _, action := range actions {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		s.applyPull(ctx, run, rec, action, res)
	}

	rec.Metric(ctx, "conflicts_detected", float64(res.ConflictsDetected))
	rec.Phase(ctx, "finalized")
	return res, nil
}

// fetchItems pages through the board, retrying rate-limited pages with
// backoff instead of failing the run.
func (s *Syncer) fetchItems(ctx context.Context, run *runContext, rec *synclog.Recorder, pageSize int, updatedSince *time.Time, includeSubitems bool) ([]boardapi.Item, error) {
	var items []boardapi.Item
	for page := 1; ; page++ {
		ip, err := s.fetchPage(ctx, run, rec, page, pageSize, updatedSince)
		if err != nil {
			return nil, err
		}
		items = append(items, ip.Items...)
		if !ip.HasMore {
			break
		}
	}

	if includeSubitems {
		parents := items
		for i := range parents {
			subs, err := run.api.ListSubitems(ctx, parents[i].ID)
			if err != nil {
				rec.Error(ctx, "subitems of %s: %v", parents[i].ID, err)
				continue
			}
			for j := range subs {
				if subs[j].ParentItemID == "" {
					subs[j].ParentItemID = parents[i].ID
				}
			}
			items = append(items, subs...)
		}
	}
	return items, nil
}

func (s *Syncer) fetchPage(ctx context.Context, run *runContext, rec *synclog.Recorder, page, pageSize int, updatedSince *time.Time) (*boardapi.ItemPage, error) {
	backoff := batch.BackoffBase
	for attempt := 0; ; attempt++ {
		ip, err := run.api.ListItems(ctx, run.mapping.BoardID, page, pageSize, updatedSince)
		if err == nil {
			return ip, nil
		}
		if !boardapi.IsRateLimit(err) || attempt >= batch.MaxRetries {
			return nil, err
		}
		rec.Message(ctx, "rate limited fetching page %d, backing off %s", page, backoff)
		if err := sleepCtx(ctx, backoff); err != nil {
			return nil, err
		}
		backoff *= 2
	}
}

// decidePull maps one candidate onto a write action. Conflicts are
// recorded here so a skipped write still leaves an audit record.
func (s *Syncer) decidePull(ctx context.Context, run *runContext, rec *synclog.Recorder, cand *pullCandidate) (*pullAction, error) {
	im, err := s.itemMappings.GetByItem(ctx, run.mapping.BoardID, cand.item.ID)
	if errors.Is(err, repository.ErrItemMappingNotFound) {
		return &pullAction{kind: actCreate, candidate: cand}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("item mapping lookup: %w", err)
	}

	doc, err := s.records.Get(ctx, im.Collection, im.LocalID)
	if errors.Is(err, store.ErrNotFound) {
		// The local document was deleted out from under the mapping.
		return &pullAction{kind: actRecreate, candidate: cand, mapping: im}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("document lookup: %w", err)
	}

	var lastSync time.Time
	if im.LastSyncAt != nil {
		lastSync = *im.LastSyncAt
	}
	det := conflict.Detect(cand.fields, doc.Fields, lastSync, cand.item.UpdatedAt, doc.UpdatedAt)
	if det.HasConflicts {
		return s.decideConflict(ctx, run, rec, cand, im, doc, det)
	}

	changed := mapping.DiffFields(doc.Fields, cand.fields)
	if len(changed) == 0 {
		return &pullAction{kind: actTouch, candidate: cand, mapping: im}, nil
	}
	return &pullAction{kind: actUpdate, candidate: cand, mapping: im, patch: changed}, nil
}

// decideConflict records the divergence and applies the board's policy.
// Under manual policy the write is skipped until someone resolves it.
func (s *Syncer) decideConflict(ctx context.Context, run *runContext, rec *synclog.Recorder, cand *pullCandidate, im *models.ItemMapping, doc *store.Record, det conflict.Detection) (*pullAction, error) {
	now := s.now()
	localValues := make(map[string]interface{}, len(det.ConflictingFields))
	for _, field := range det.ConflictingFields {
		if v, ok := mapping.ResolveFieldPath(doc.Fields, field); ok {
			localValues[field] = v
		}
	}

	c := &models.Conflict{
		ItemMappingID:      im.ItemMappingID,
		BoardMappingID:     run.mapping.MappingID,
		ConflictingFields:  det.ConflictingFields,
		ExternalValues:     cand.fields,
		LocalValues:        localValues,
		LastExternalUpdate: cand.item.UpdatedAt,
		LastLocalUpdate:    doc.UpdatedAt,
		Status:             models.ConflictDetected,
		DetectedAt:         now,
	}
	logID := rec.ID()
	c.SyncLogID = &logID

	policy := run.mapping.ConflictPolicy
	externalWins := false
	if policy != models.StrategyManual && policy != "" {
		strategy := policy
		externalWins = policy == models.StrategyExternalWins ||
			(policy == models.StrategyLatestWins && cand.item.UpdatedAt.After(doc.UpdatedAt))

		c.Status = models.ConflictResolvedAuto
		c.ResolvedAt = &now
		c.ResolutionStrategy = &strategy
		system := "system"
		c.ResolvedBy = &system
		if externalWins {
			c.ResolvedValues = cand.fields
		} else {
			c.ResolvedValues = localValues
		}
	}

	if _, err := s.conflicts.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to record conflict: %w", err)
	}
	rec.Message(ctx, "conflict on item %s in fields %v (policy %s)", cand.item.ID, det.ConflictingFields, policy)

	if !externalWins {
		return &pullAction{kind: actSkip, candidate: cand, mapping: im, conflicted: true}, nil
	}
	changed := mapping.DiffFields(doc.Fields, cand.fields)
	if len(changed) == 0 {
		return &pullAction{kind: actTouch, candidate: cand, mapping: im, conflicted: true}, nil
	}
	return &pullAction{kind: actUpdate, candidate: cand, mapping: im, patch: changed, conflicted: true}, nil
}

// applyPull performs the decided write and keeps counts. Per-item
// failures never abort the run.
func (s *Syncer) applyPull(ctx context.Context, run *runContext, rec *synclog.Recorder, action *pullAction, res *PullResult) {
	cand := action.candidate
	now := s.now()

	fail := func(err error) {
		rec.Error(ctx, "item %s: %v", cand.item.ID, err)
		rec.AddCounts(1, 0, 0, 1)
		res.RecordsProcessed++
		res.RecordsFailed++
	}

	switch action.kind {
	case actCreate:
		doc, err := s.records.Insert(ctx, run.mapping.Collection, mapping.ExpandFields(cand.fields))
		if err != nil {
			fail(fmt.Errorf("insert: %w", err))
			return
		}
		im := &models.ItemMapping{
			BoardMappingID: run.mapping.MappingID,
			BoardID:        run.mapping.BoardID,
			ItemID:         cand.item.ID,
			Collection:     run.mapping.Collection,
			LocalID:        doc.ID,
			SyncStatus:     "synced",
			LastSyncAt:     &now,
			IsSubitem:      cand.parent != "",
		}
		if cand.parent != "" {
			parent := cand.parent
			im.ParentItemID = &parent
		}
		if _, err := s.itemMappings.Create(ctx, im); err != nil {
			fail(fmt.Errorf("create item mapping: %w", err))
			return
		}
		rec.AddCounts(1, 1, 0, 0)
		res.RecordsProcessed++
		res.RecordsCreated++

	case actRecreate:
		doc, err := s.records.Insert(ctx, action.mapping.Collection, mapping.ExpandFields(cand.fields))
		if err != nil {
			fail(fmt.Errorf("reinsert: %w", err))
			return
		}
		if err := s.itemMappings.Repoint(ctx, action.mapping.ItemMappingID, doc.ID, now); err != nil {
			fail(fmt.Errorf("repoint item mapping: %w", err))
			return
		}
		rec.Message(ctx, "recreated deleted document for item %s", cand.item.ID)
		rec.AddCounts(1, 1, 0, 0)
		res.RecordsProcessed++
		res.RecordsCreated++

	case actUpdate:
		if _, err := s.records.Patch(ctx, action.mapping.Collection, action.mapping.LocalID, action.patch); err != nil {
			fail(fmt.Errorf("patch: %w", err))
			return
		}
		s.touch(ctx, action.mapping, now)
		rec.AddCounts(1, 0, 1, 0)
		res.RecordsProcessed++
		res.RecordsUpdated++

	case actTouch:
		s.touch(ctx, action.mapping, now)
		rec.AddCounts(1, 0, 0, 0)
		res.RecordsProcessed++

	case actSkip:
		// Conflict held for manual resolution, or the local side won.
		rec.AddCounts(1, 0, 0, 0)
		res.RecordsProcessed++
	}
}

func (s *Syncer) touch(ctx context.Context, im *models.ItemMapping, now time.Time) {
	if err := s.itemMappings.Touch(ctx, im.ItemMappingID, "synced", now); err != nil {
		s.logf("failed to touch item mapping %s: %v", im.ItemMappingID, err)
	}
}
