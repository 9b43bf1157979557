package engine

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// SyncLogHandlers contains the sync log endpoint handlers
type SyncLogHandlers struct {
	engine *Engine
}

// NewSyncLogHandlers creates a new instance of SyncLogHandlers
func NewSyncLogHandlers(engine *Engine) *SyncLogHandlers {
	return &SyncLogHandlers{engine: engine}
}

// Get handles GET /api/v1/sync-logs/{log_id}
func (lh *SyncLogHandlers) Get(w http.ResponseWriter, r *http.Request) {
	lh.engine.TrackOperation()
	defer lh.engine.UntrackOperation()

	ctx, cancel := requestContext(r)
	defer cancel()

	log, err := lh.engine.syncLogs.Get(ctx, mux.Vars(r)["log_id"])
	if err != nil {
		lh.engine.writeServiceError(w, err, "Failed to get sync log")
		return
	}
	lh.engine.writeJSONResponse(w, http.StatusOK, log)
}

// ListForMapping handles GET /api/v1/board-mappings/{mapping_id}/logs
func (lh *SyncLogHandlers) ListForMapping(w http.ResponseWriter, r *http.Request) {
	lh.engine.TrackOperation()
	defer lh.engine.UntrackOperation()

	ctx, cancel := requestContext(r)
	defer cancel()

	mappingID := mux.Vars(r)["mapping_id"]
	bm, err := lh.engine.boardMappings.Get(ctx, mappingID)
	if err != nil {
		lh.engine.writeServiceError(w, err, "Failed to get board mapping")
		return
	}

	logs, err := lh.engine.syncLogs.List(ctx, bm.IntegrationID, mappingID, queryLimit(r, 50))
	if err != nil {
		lh.engine.writeServiceError(w, err, "Failed to list sync logs")
		return
	}
	lh.engine.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"sync_logs": logs})
}

// Summary handles GET /api/v1/integrations/{integration_id}/logs/summary
func (lh *SyncLogHandlers) Summary(w http.ResponseWriter, r *http.Request) {
	lh.engine.TrackOperation()
	defer lh.engine.UntrackOperation()

	ctx, cancel := requestContext(r)
	defer cancel()

	summary, err := lh.engine.syncLogs.Summarize(ctx, mux.Vars(r)["integration_id"])
	if err != nil {
		lh.engine.writeServiceError(w, err, "Failed to summarize sync logs")
		return
	}
	lh.engine.writeJSONResponse(w, http.StatusOK, summary)
}

func queryLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
