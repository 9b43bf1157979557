package engine

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/boardsync/boardsync/internal/conflict"
	"github.com/boardsync/boardsync/pkg/models"
)

// ConflictHandlers contains the conflict endpoint handlers
type ConflictHandlers struct {
	engine *Engine
}

// NewConflictHandlers creates a new instance of ConflictHandlers
func NewConflictHandlers(engine *Engine) *ConflictHandlers {
	return &ConflictHandlers{engine: engine}
}

// List handles GET /api/v1/conflicts?board_mapping_id=...&status=...
func (ch *ConflictHandlers) List(w http.ResponseWriter, r *http.Request) {
	ch.engine.TrackOperation()
	defer ch.engine.UntrackOperation()

	ctx, cancel := requestContext(r)
	defer cancel()

	boardMappingID := r.URL.Query().Get("board_mapping_id")
	status := models.ConflictStatus(r.URL.Query().Get("status"))

	conflicts, err := ch.engine.conflicts.List(ctx, boardMappingID, status, queryLimit(r, 100))
	if err != nil {
		ch.engine.writeServiceError(w, err, "Failed to list conflicts")
		return
	}
	ch.engine.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"conflicts": conflicts})
}

// Stats handles GET /api/v1/board-mappings/{mapping_id}/conflicts/stats
func (ch *ConflictHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	ch.engine.TrackOperation()
	defer ch.engine.UntrackOperation()

	ctx, cancel := requestContext(r)
	defer cancel()

	stats, err := ch.engine.conflicts.Stats(ctx, mux.Vars(r)["mapping_id"])
	if err != nil {
		ch.engine.writeServiceError(w, err, "Failed to compute conflict stats")
		return
	}
	ch.engine.writeJSONResponse(w, http.StatusOK, stats)
}

type resolveRequest struct {
	Strategy   models.ResolutionStrategy `json:"strategy"`
	Values     map[string]interface{}    `json:"values,omitempty"`
	ResolvedBy string                    `json:"resolved_by,omitempty"`
	// Apply defaults to true: the resolution is written back onto the
	// local document unless the caller opts out.
	Apply *bool `json:"apply,omitempty"`
}

func (r resolveRequest) shouldApply() bool {
	return r.Apply == nil || *r.Apply
}

// Resolve handles POST /api/v1/conflicts/{conflict_id}/resolve
func (ch *ConflictHandlers) Resolve(w http.ResponseWriter, r *http.Request) {
	ch.engine.TrackOperation()
	defer ch.engine.UntrackOperation()

	var req resolveRequest
	if err := decodeBody(r, &req); err != nil {
		ch.engine.writeErrorResponse(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	conflictID := mux.Vars(r)["conflict_id"]
	resolution, err := ch.engine.resolver.Resolve(ctx, conflictID, req.Strategy, req.Values, req.ResolvedBy)
	if err != nil {
		if errors.Is(err, conflict.ErrMissingResolution) || errors.Is(err, conflict.ErrUnknownStrategy) {
			ch.engine.writeErrorResponse(w, http.StatusBadRequest, err.Error(), "")
			return
		}
		ch.engine.writeServiceError(w, err, "Failed to resolve conflict")
		return
	}

	if req.shouldApply() {
		if err := ch.engine.applier.Apply(ctx, conflictID); err != nil {
			ch.engine.writeServiceError(w, err, "Resolved but failed to apply resolution")
			return
		}
	}
	ch.engine.writeJSONResponse(w, http.StatusOK, resolution)
}

type resolveBatchRequest struct {
	ConflictIDs []string                  `json:"conflict_ids"`
	Strategy    models.ResolutionStrategy `json:"strategy"`
	ResolvedBy  string                    `json:"resolved_by,omitempty"`
	Apply       *bool                     `json:"apply,omitempty"`
}

// ResolveBatch handles POST /api/v1/conflicts/resolve-batch
func (ch *ConflictHandlers) ResolveBatch(w http.ResponseWriter, r *http.Request) {
	ch.engine.TrackOperation()
	defer ch.engine.UntrackOperation()

	var req resolveBatchRequest
	if err := decodeBody(r, &req); err != nil {
		ch.engine.writeErrorResponse(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if len(req.ConflictIDs) == 0 {
		ch.engine.writeErrorResponse(w, http.StatusBadRequest, "conflict_ids is required", "")
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	outcomes := ch.engine.resolver.ResolveBatch(ctx, req.ConflictIDs, req.Strategy, req.ResolvedBy)
	if req.Apply == nil || *req.Apply {
		for i := range outcomes {
			if !outcomes[i].Success {
				continue
			}
			if err := ch.engine.applier.Apply(ctx, outcomes[i].ConflictID); err != nil {
				outcomes[i].Message = fmt.Sprintf("resolved but not applied: %v", err)
			}
		}
	}
	ch.engine.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"outcomes": outcomes})
}
