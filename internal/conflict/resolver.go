package conflict

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/boardsync/boardsync/pkg/models"
)

var (
	// ErrMissingResolution is returned when the manual strategy is
	// invoked without a caller-supplied value set.
	ErrMissingResolution = errors.New("manual resolution requires resolved values")

	// ErrUnknownStrategy is returned for an unrecognized strategy name.
	ErrUnknownStrategy = errors.New("unknown resolution strategy")
)

// Store is the persistence surface the resolver needs.
type Store interface {
	GetConflict(ctx context.Context, conflictID string) (*models.Conflict, error)
	UpdateConflict(ctx context.Context, conflict *models.Conflict) error
}

// Resolution is the outcome of resolving one conflict. Application of
// the values back to either store is the caller's decision.
type Resolution struct {
	ConflictID      string                    `json:"conflict_id"`
	Strategy        models.ResolutionStrategy `json:"strategy"`
	Status          models.ConflictStatus     `json:"status"`
	Values          map[string]interface{}    `json:"values"`
	AlreadyResolved bool                      `json:"already_resolved"`
}

// Resolver applies resolution strategies to stored conflicts.
type Resolver struct {
	store Store
	now   func() time.Time
}

// NewResolver creates a resolver over the given conflict store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store, now: time.Now}
}

// Resolve reconciles one conflict with the given strategy. Resolving is
// idempotent: a conflict that already reached a terminal status returns
// its stored resolution without recomputation or a second write.
func (r *Resolver) Resolve(ctx context.Context, conflictID string, strategy models.ResolutionStrategy, manualValues map[string]interface{}, resolvedBy string) (*Resolution, error) {
	c, err := r.store.GetConflict(ctx, conflictID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conflict: %w", err)
	}

	if c.Status.Resolved() {
		res := &Resolution{
			ConflictID:      c.ConflictID,
			Status:          c.Status,
			Values:          c.ResolvedValues,
			AlreadyResolved: true,
		}
		if c.ResolutionStrategy != nil {
			res.Strategy = *c.ResolutionStrategy
		}
		return res, nil
	}

	values, status, err := pickValues(c, strategy, manualValues)
	if err != nil {
		return nil, err
	}

	resolvedAt := r.now()
	c.Status = status
	c.ResolvedAt = &resolvedAt
	c.ResolutionStrategy = &strategy
	c.ResolvedValues = values
	if resolvedBy != "" {
		c.ResolvedBy = &resolvedBy
	}

	if err := r.store.UpdateConflict(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to persist resolution: %w", err)
	}

	return &Resolution{
		ConflictID: c.ConflictID,
		Strategy:   strategy,
		Status:     status,
		Values:     values,
	}, nil
}

// pickValues chooses the winning value set wholesale, never per field.
func pickValues(c *models.Conflict, strategy models.ResolutionStrategy, manualValues map[string]interface{}) (map[string]interface{}, models.ConflictStatus, error) {
	switch strategy {
	case models.StrategyLatestWins:
		if c.LastExternalUpdate.After(c.LastLocalUpdate) {
			return c.ExternalValues, models.ConflictResolvedAuto, nil
		}
		return c.LocalValues, models.ConflictResolvedAuto, nil

	case models.StrategyExternalWins:
		return c.ExternalValues, models.ConflictResolvedAuto, nil

	case models.StrategyLocalWins:
		return c.LocalValues, models.ConflictResolvedAuto, nil

	case models.StrategyManual:
		if len(manualValues) == 0 {
			return nil, "", ErrMissingResolution
		}
		return manualValues, models.ConflictResolvedManual, nil

	default:
		return nil, "", fmt.Errorf("%w: %s", ErrUnknownStrategy, strategy)
	}
}

// BatchOutcome reports one conflict's result within a batch resolution.
type BatchOutcome struct {
	ConflictID string `json:"conflict_id"`
	Success    bool   `json:"success"`
	Message    string `json:"message,omitempty"`
}

// ResolveBatch applies one strategy across many conflicts, reporting a
// per-conflict outcome. One failed conflict never aborts the rest.
func (r *Resolver) ResolveBatch(ctx context.Context, conflictIDs []string, strategy models.ResolutionStrategy, resolvedBy string) []BatchOutcome {
	outcomes := make([]BatchOutcome, 0, len(conflictIDs))
	for _, id := range conflictIDs {
		if _, err := r.Resolve(ctx, id, strategy, nil, resolvedBy); err != nil {
			outcomes = append(outcomes, BatchOutcome{ConflictID: id, Message: err.Error()})
			continue
		}
		outcomes = append(outcomes, BatchOutcome{ConflictID: id, Success: true})
	}
	return outcomes
}
