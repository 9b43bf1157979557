package engine

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/boardsync/boardsync/internal/syncer"
	"github.com/boardsync/boardsync/pkg/models"
)

// IntegrationHandlers contains the integration endpoint handlers
type IntegrationHandlers struct {
	engine *Engine
}

// NewIntegrationHandlers creates a new instance of IntegrationHandlers
func NewIntegrationHandlers(engine *Engine) *IntegrationHandlers {
	return &IntegrationHandlers{engine: engine}
}

type connectRequest struct {
	IntegrationName  string `json:"integration_name"`
	APIKey           string `json:"api_key"`
	WorkspaceID      string `json:"workspace_id,omitempty"`
	AutoSyncInterval *int64 `json:"auto_sync_interval_seconds,omitempty"`
	PageSize         *int   `json:"page_size,omitempty"`
	BatchSize        *int   `json:"batch_size,omitempty"`
	RateLimitPerMin  *int   `json:"rate_limit_per_minute,omitempty"`
}

// Connect handles POST /api/v1/integrations. The API key is verified
// against the external account before anything is stored.
func (ih *IntegrationHandlers) Connect(w http.ResponseWriter, r *http.Request) {
	ih.engine.TrackOperation()
	defer ih.engine.UntrackOperation()

	var req connectRequest
	if err := decodeBody(r, &req); err != nil {
		ih.engine.writeErrorResponse(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.IntegrationName == "" || req.APIKey == "" {
		ih.engine.writeErrorResponse(w, http.StatusBadRequest, "integration_name and api_key are required", "")
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	in := &models.Integration{
		IntegrationName:  req.IntegrationName,
		APIKey:           req.APIKey,
		WorkspaceID:      req.WorkspaceID,
		Enabled:          true,
		AutoSyncInterval: req.AutoSyncInterval,
		PageSize:         req.PageSize,
		BatchSize:        req.BatchSize,
		RateLimitPerMin:  req.RateLimitPerMin,
	}

	account, err := syncer.DefaultClientFactory(in).TestConnection(ctx)
	if err != nil {
		ih.engine.writeErrorResponse(w, http.StatusBadGateway, "connection test failed", err.Error())
		return
	}
	in.ConnectionStatus = "connected"
	if in.WorkspaceID == "" && account != nil {
		in.WorkspaceName = account.Name
	}

	created, err := ih.engine.integrations.Create(ctx, in)
	if err != nil {
		ih.engine.writeServiceError(w, err, "Failed to create integration")
		return
	}
	ih.engine.writeJSONResponse(w, http.StatusCreated, created)
}

// List handles GET /api/v1/integrations
func (ih *IntegrationHandlers) List(w http.ResponseWriter, r *http.Request) {
	ih.engine.TrackOperation()
	defer ih.engine.UntrackOperation()

	ctx, cancel := requestContext(r)
	defer cancel()

	integrations, err := ih.engine.integrations.List(ctx)
	if err != nil {
		ih.engine.writeServiceError(w, err, "Failed to list integrations")
		return
	}
	ih.engine.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"integrations": integrations})
}

// Get handles GET /api/v1/integrations/{integration_id}
func (ih *IntegrationHandlers) Get(w http.ResponseWriter, r *http.Request) {
	ih.engine.TrackOperation()
	defer ih.engine.UntrackOperation()

	ctx, cancel := requestContext(r)
	defer cancel()

	in, err := ih.engine.integrations.Get(ctx, mux.Vars(r)["integration_id"])
	if err != nil {
		ih.engine.writeServiceError(w, err, "Failed to get integration")
		return
	}
	ih.engine.writeJSONResponse(w, http.StatusOK, in)
}

type updateIntegrationRequest struct {
	IntegrationName  *string `json:"integration_name,omitempty"`
	APIKey           *string `json:"api_key,omitempty"`
	Enabled          *bool   `json:"enabled,omitempty"`
	AutoSyncInterval *int64  `json:"auto_sync_interval_seconds,omitempty"`
	PageSize         *int    `json:"page_size,omitempty"`
	BatchSize        *int    `json:"batch_size,omitempty"`
	RateLimitPerMin  *int    `json:"rate_limit_per_minute,omitempty"`
}

// Update handles PUT /api/v1/integrations/{integration_id}
func (ih *IntegrationHandlers) Update(w http.ResponseWriter, r *http.Request) {
	ih.engine.TrackOperation()
	defer ih.engine.UntrackOperation()

	var req updateIntegrationRequest
	if err := decodeBody(r, &req); err != nil {
		ih.engine.writeErrorResponse(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	in, err := ih.engine.integrations.Get(ctx, mux.Vars(r)["integration_id"])
	if err != nil {
		ih.engine.writeServiceError(w, err, "Failed to get integration")
		return
	}

	if req.IntegrationName != nil {
		in.IntegrationName = *req.IntegrationName
	}
	if req.APIKey != nil {
		in.APIKey = *req.APIKey
	}
	if req.Enabled != nil {
		in.Enabled = *req.Enabled
	}
	if req.AutoSyncInterval != nil {
		in.AutoSyncInterval = req.AutoSyncInterval
	}
	if req.PageSize != nil {
		in.PageSize = req.PageSize
	}
	if req.BatchSize != nil {
		in.BatchSize = req.BatchSize
	}
	if req.RateLimitPerMin != nil {
		in.RateLimitPerMin = req.RateLimitPerMin
	}

	updated, err := ih.engine.integrations.Update(ctx, in)
	if err != nil {
		ih.engine.writeServiceError(w, err, "Failed to update integration")
		return
	}
	ih.engine.writeJSONResponse(w, http.StatusOK, updated)
}

// Test handles POST /api/v1/integrations/{integration_id}/test
func (ih *IntegrationHandlers) Test(w http.ResponseWriter, r *http.Request) {
	ih.engine.TrackOperation()
	defer ih.engine.UntrackOperation()

	ctx, cancel := requestContext(r)
	defer cancel()

	integrationID := mux.Vars(r)["integration_id"]
	in, err := ih.engine.integrations.Get(ctx, integrationID)
	if err != nil {
		ih.engine.writeServiceError(w, err, "Failed to get integration")
		return
	}

	account, testErr := syncer.DefaultClientFactory(in).TestConnection(ctx)
	status := "connected"
	if testErr != nil {
		status = "error"
	}
	if err := ih.engine.integrations.RecordConnectionTest(ctx, integrationID, status, testErr); err != nil {
		ih.engine.writeServiceError(w, err, "Failed to record connection test")
		return
	}
	if testErr != nil {
		ih.engine.writeErrorResponse(w, http.StatusBadGateway, "connection test failed", testErr.Error())
		return
	}
	ih.engine.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":  status,
		"account": account,
	})
}

// ListWorkspaces handles GET /api/v1/integrations/{integration_id}/workspaces
func (ih *IntegrationHandlers) ListWorkspaces(w http.ResponseWriter, r *http.Request) {
	ih.engine.TrackOperation()
	defer ih.engine.UntrackOperation()

	ctx, cancel := requestContext(r)
	defer cancel()

	in, err := ih.engine.integrations.Get(ctx, mux.Vars(r)["integration_id"])
	if err != nil {
		ih.engine.writeServiceError(w, err, "Failed to get integration")
		return
	}
	workspaces, err := syncer.DefaultClientFactory(in).ListWorkspaces(ctx)
	if err != nil {
		ih.engine.writeErrorResponse(w, http.StatusBadGateway, "failed to list workspaces", err.Error())
		return
	}
	ih.engine.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"workspaces": workspaces})
}

// ListBoards handles GET /api/v1/integrations/{integration_id}/boards
func (ih *IntegrationHandlers) ListBoards(w http.ResponseWriter, r *http.Request) {
	ih.engine.TrackOperation()
	defer ih.engine.UntrackOperation()

	ctx, cancel := requestContext(r)
	defer cancel()

	in, err := ih.engine.integrations.Get(ctx, mux.Vars(r)["integration_id"])
	if err != nil {
		ih.engine.writeServiceError(w, err, "Failed to get integration")
		return
	}
	workspaceID := r.URL.Query().Get("workspace_id")
	if workspaceID == "" {
		workspaceID = in.WorkspaceID
	}
	boards, err := syncer.DefaultClientFactory(in).ListBoards(ctx, workspaceID)
	if err != nil {
		ih.engine.writeErrorResponse(w, http.StatusBadGateway, "failed to list boards", err.Error())
		return
	}
	ih.engine.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"boards": boards})
}

// ListColumns handles GET /api/v1/integrations/{integration_id}/boards/{board_id}/columns
func (ih *IntegrationHandlers) ListColumns(w http.ResponseWriter, r *http.Request) {
	ih.engine.TrackOperation()
	defer ih.engine.UntrackOperation()

	ctx, cancel := requestContext(r)
	defer cancel()

	vars := mux.Vars(r)
	in, err := ih.engine.integrations.Get(ctx, vars["integration_id"])
	if err != nil {
		ih.engine.writeServiceError(w, err, "Failed to get integration")
		return
	}
	api := syncer.DefaultClientFactory(in)
	columns, err := api.ListColumns(ctx, vars["board_id"])
	if err != nil {
		ih.engine.writeErrorResponse(w, http.StatusBadGateway, "failed to list columns", err.Error())
		return
	}
	count, err := api.CountItems(ctx, vars["board_id"])
	if err != nil {
		count = -1
	}
	ih.engine.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"columns":    columns,
		"item_count": count,
	})
}

// SyncAll handles POST /api/v1/integrations/{integration_id}/sync-all
func (ih *IntegrationHandlers) SyncAll(w http.ResponseWriter, r *http.Request) {
	ih.engine.TrackOperation()
	defer ih.engine.UntrackOperation()

	var opts syncOptions
	if r.ContentLength > 0 {
		if err := decodeBody(r, &opts); err != nil {
			ih.engine.writeErrorResponse(w, http.StatusBadRequest, "invalid request body", err.Error())
			return
		}
	}

	// Sync-all runs can outlive a single request timeout.
	result, err := ih.engine.sync.SyncAllBoards(r.Context(), mux.Vars(r)["integration_id"], opts.toOptions())
	if err != nil {
		ih.engine.writeServiceError(w, err, "Failed to sync integration")
		return
	}
	ih.engine.writeJSONResponse(w, http.StatusOK, result)
}

// syncOptions is the request body shared by the sync endpoints.
type syncOptions struct {
	ForceFullSync   bool `json:"force_full_sync,omitempty"`
	IncludeSubitems bool `json:"include_subitems,omitempty"`
	PageSize        int  `json:"page_size,omitempty"`
	BatchSize       int  `json:"batch_size,omitempty"`
}

func (o syncOptions) toOptions() syncer.Options {
	return syncer.Options{
		ForceFullSync:   o.ForceFullSync,
		IncludeSubitems: o.IncludeSubitems,
		PageSize:        o.PageSize,
		BatchSize:       o.BatchSize,
	}
}
