package engine

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/boardsync/boardsync/pkg/models"
)

// MappingHandlers contains the board and column mapping endpoint handlers
type MappingHandlers struct {
	engine *Engine
}

// NewMappingHandlers creates a new instance of MappingHandlers
func NewMappingHandlers(engine *Engine) *MappingHandlers {
	return &MappingHandlers{engine: engine}
}

// Create handles POST /api/v1/board-mappings
func (mh *MappingHandlers) Create(w http.ResponseWriter, r *http.Request) {
	mh.engine.TrackOperation()
	defer mh.engine.UntrackOperation()

	var bm models.BoardMapping
	if err := decodeBody(r, &bm); err != nil {
		mh.engine.writeErrorResponse(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if bm.IntegrationID == "" || bm.BoardID == "" || bm.Collection == "" {
		mh.engine.writeErrorResponse(w, http.StatusBadRequest, "integration_id, board_id and collection are required", "")
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	if _, err := mh.engine.integrations.Get(ctx, bm.IntegrationID); err != nil {
		mh.engine.writeServiceError(w, err, "Failed to resolve integration")
		return
	}
	created, err := mh.engine.boardMappings.Create(ctx, &bm)
	if err != nil {
		mh.engine.writeServiceError(w, err, "Failed to create board mapping")
		return
	}
	mh.engine.writeJSONResponse(w, http.StatusCreated, created)
}

// List handles GET /api/v1/board-mappings?integration_id=...
func (mh *MappingHandlers) List(w http.ResponseWriter, r *http.Request) {
	mh.engine.TrackOperation()
	defer mh.engine.UntrackOperation()

	integrationID := r.URL.Query().Get("integration_id")
	if integrationID == "" {
		mh.engine.writeErrorResponse(w, http.StatusBadRequest, "integration_id query parameter is required", "")
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	mappings, err := mh.engine.boardMappings.List(ctx, integrationID)
	if err != nil {
		mh.engine.writeServiceError(w, err, "Failed to list board mappings")
		return
	}
	mh.engine.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"board_mappings": mappings})
}

// Get handles GET /api/v1/board-mappings/{mapping_id}
func (mh *MappingHandlers) Get(w http.ResponseWriter, r *http.Request) {
	mh.engine.TrackOperation()
	defer mh.engine.UntrackOperation()

	ctx, cancel := requestContext(r)
	defer cancel()

	bm, err := mh.engine.boardMappings.Get(ctx, mux.Vars(r)["mapping_id"])
	if err != nil {
		mh.engine.writeServiceError(w, err, "Failed to get board mapping")
		return
	}
	mh.engine.writeJSONResponse(w, http.StatusOK, bm)
}

type updateBoardMappingRequest struct {
	BoardName      *string                    `json:"board_name,omitempty"`
	Direction      *models.SyncDirection      `json:"direction,omitempty"`
	Enabled        *bool                      `json:"enabled,omitempty"`
	ConflictPolicy *models.ResolutionStrategy `json:"conflict_policy,omitempty"`
}

// Update handles PUT /api/v1/board-mappings/{mapping_id}
func (mh *MappingHandlers) Update(w http.ResponseWriter, r *http.Request) {
	mh.engine.TrackOperation()
	defer mh.engine.UntrackOperation()

	var req updateBoardMappingRequest
	if err := decodeBody(r, &req); err != nil {
		mh.engine.writeErrorResponse(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	bm, err := mh.engine.boardMappings.Get(ctx, mux.Vars(r)["mapping_id"])
	if err != nil {
		mh.engine.writeServiceError(w, err, "Failed to get board mapping")
		return
	}
	if req.BoardName != nil {
		bm.BoardName = *req.BoardName
	}
	if req.Direction != nil {
		bm.Direction = *req.Direction
	}
	if req.Enabled != nil {
		bm.Enabled = *req.Enabled
	}
	if req.ConflictPolicy != nil {
		bm.ConflictPolicy = *req.ConflictPolicy
	}

	updated, err := mh.engine.boardMappings.Update(ctx, bm)
	if err != nil {
		mh.engine.writeServiceError(w, err, "Failed to update board mapping")
		return
	}
	mh.engine.writeJSONResponse(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/v1/board-mappings/{mapping_id}
func (mh *MappingHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	mh.engine.TrackOperation()
	defer mh.engine.UntrackOperation()

	ctx, cancel := requestContext(r)
	defer cancel()

	if err := mh.engine.boardMappings.Delete(ctx, mux.Vars(r)["mapping_id"]); err != nil {
		mh.engine.writeServiceError(w, err, "Failed to delete board mapping")
		return
	}
	mh.engine.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// CreateColumnMapping handles POST /api/v1/board-mappings/{mapping_id}/column-mappings
func (mh *MappingHandlers) CreateColumnMapping(w http.ResponseWriter, r *http.Request) {
	mh.engine.TrackOperation()
	defer mh.engine.UntrackOperation()

	var cm models.ColumnMapping
	if err := decodeBody(r, &cm); err != nil {
		mh.engine.writeErrorResponse(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if cm.ColumnID == "" || cm.FieldPath == "" {
		mh.engine.writeErrorResponse(w, http.StatusBadRequest, "column_id and field_path are required", "")
		return
	}
	cm.BoardMappingID = mux.Vars(r)["mapping_id"]

	ctx, cancel := requestContext(r)
	defer cancel()

	if _, err := mh.engine.boardMappings.Get(ctx, cm.BoardMappingID); err != nil {
		mh.engine.writeServiceError(w, err, "Failed to resolve board mapping")
		return
	}
	created, err := mh.engine.boardMappings.CreateColumnMapping(ctx, &cm)
	if err != nil {
		mh.engine.writeServiceError(w, err, "Failed to create column mapping")
		return
	}
	mh.engine.writeJSONResponse(w, http.StatusCreated, created)
}

// ListColumnMappings handles GET /api/v1/board-mappings/{mapping_id}/column-mappings
func (mh *MappingHandlers) ListColumnMappings(w http.ResponseWriter, r *http.Request) {
	mh.engine.TrackOperation()
	defer mh.engine.UntrackOperation()

	ctx, cancel := requestContext(r)
	defer cancel()

	columns, err := mh.engine.boardMappings.ListColumnMappings(ctx, mux.Vars(r)["mapping_id"])
	if err != nil {
		mh.engine.writeServiceError(w, err, "Failed to list column mappings")
		return
	}
	mh.engine.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"column_mappings": columns})
}

// UpdateColumnMapping handles PUT /api/v1/board-mappings/{mapping_id}/column-mappings/{column_mapping_id}
func (mh *MappingHandlers) UpdateColumnMapping(w http.ResponseWriter, r *http.Request) {
	mh.engine.TrackOperation()
	defer mh.engine.UntrackOperation()

	var cm models.ColumnMapping
	if err := decodeBody(r, &cm); err != nil {
		mh.engine.writeErrorResponse(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	vars := mux.Vars(r)
	cm.ColumnMappingID = vars["column_mapping_id"]
	cm.BoardMappingID = vars["mapping_id"]

	ctx, cancel := requestContext(r)
	defer cancel()

	updated, err := mh.engine.boardMappings.UpdateColumnMapping(ctx, &cm)
	if err != nil {
		mh.engine.writeServiceError(w, err, "Failed to update column mapping")
		return
	}
	mh.engine.writeJSONResponse(w, http.StatusOK, updated)
}

// DeleteColumnMapping handles DELETE /api/v1/board-mappings/{mapping_id}/column-mappings/{column_mapping_id}
func (mh *MappingHandlers) DeleteColumnMapping(w http.ResponseWriter, r *http.Request) {
	mh.engine.TrackOperation()
	defer mh.engine.UntrackOperation()

	ctx, cancel := requestContext(r)
	defer cancel()

	if err := mh.engine.boardMappings.DeleteColumnMapping(ctx, mux.Vars(r)["column_mapping_id"]); err != nil {
		mh.engine.writeServiceError(w, err, "Failed to delete column mapping")
		return
	}
	mh.engine.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Pull handles POST /api/v1/board-mappings/{mapping_id}/pull
func (mh *MappingHandlers) Pull(w http.ResponseWriter, r *http.Request) {
	mh.engine.TrackOperation()
	defer mh.engine.UntrackOperation()

	var opts syncOptions
	if r.ContentLength > 0 {
		if err := decodeBody(r, &opts); err != nil {
			mh.engine.writeErrorResponse(w, http.StatusBadRequest, "invalid request body", err.Error())
			return
		}
	}

	// Sync runs can outlive a single request timeout.
	result, err := mh.engine.sync.PullBoard(r.Context(), mux.Vars(r)["mapping_id"], opts.toOptions())
	if err != nil {
		mh.engine.writeServiceError(w, err, "Pull failed")
		return
	}
	mh.engine.writeJSONResponse(w, http.StatusOK, result)
}

// Push handles POST /api/v1/board-mappings/{mapping_id}/push
func (mh *MappingHandlers) Push(w http.ResponseWriter, r *http.Request) {
	mh.engine.TrackOperation()
	defer mh.engine.UntrackOperation()

	var opts syncOptions
	if r.ContentLength > 0 {
		if err := decodeBody(r, &opts); err != nil {
			mh.engine.writeErrorResponse(w, http.StatusBadRequest, "invalid request body", err.Error())
			return
		}
	}

	result, err := mh.engine.sync.PushBoard(r.Context(), mux.Vars(r)["mapping_id"], opts.toOptions())
	if err != nil {
		mh.engine.writeServiceError(w, err, "Push failed")
		return
	}
	mh.engine.writeJSONResponse(w, http.StatusOK, result)
}
