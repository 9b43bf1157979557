package engine

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/boardsync/boardsync/internal/rules"
	"github.com/boardsync/boardsync/pkg/models"
)

// RuleHandlers contains the sync rule endpoint handlers
type RuleHandlers struct {
	engine *Engine
}

// NewRuleHandlers creates a new instance of RuleHandlers
func NewRuleHandlers(engine *Engine) *RuleHandlers {
	return &RuleHandlers{engine: engine}
}

// Create handles POST /api/v1/rules
func (rh *RuleHandlers) Create(w http.ResponseWriter, r *http.Request) {
	rh.engine.TrackOperation()
	defer rh.engine.UntrackOperation()

	var rule models.SyncRule
	if err := decodeBody(r, &rule); err != nil {
		rh.engine.writeErrorResponse(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if rule.RuleName == "" || rule.IntegrationID == "" {
		rh.engine.writeErrorResponse(w, http.StatusBadRequest, "rule_name and integration_id are required", "")
		return
	}
	if err := rules.ValidateRule(&rule); err != nil {
		rh.engine.writeErrorResponse(w, http.StatusBadRequest, "invalid rule", err.Error())
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	created, err := rh.engine.ruleRepo.Create(ctx, &rule)
	if err != nil {
		rh.engine.writeServiceError(w, err, "Failed to create rule")
		return
	}
	rh.engine.writeJSONResponse(w, http.StatusCreated, created)
}

// List handles GET /api/v1/rules?integration_id=...
func (rh *RuleHandlers) List(w http.ResponseWriter, r *http.Request) {
	rh.engine.TrackOperation()
	defer rh.engine.UntrackOperation()

	integrationID := r.URL.Query().Get("integration_id")
	if integrationID == "" {
		rh.engine.writeErrorResponse(w, http.StatusBadRequest, "integration_id query parameter is required", "")
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	list, err := rh.engine.ruleRepo.List(ctx, integrationID)
	if err != nil {
		rh.engine.writeServiceError(w, err, "Failed to list rules")
		return
	}
	rh.engine.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"rules": list})
}

// Get handles GET /api/v1/rules/{rule_id}
func (rh *RuleHandlers) Get(w http.ResponseWriter, r *http.Request) {
	rh.engine.TrackOperation()
	defer rh.engine.UntrackOperation()

	ctx, cancel := requestContext(r)
	defer cancel()

	rule, err := rh.engine.ruleRepo.Get(ctx, mux.Vars(r)["rule_id"])
	if err != nil {
		rh.engine.writeServiceError(w, err, "Failed to get rule")
		return
	}
	rh.engine.writeJSONResponse(w, http.StatusOK, rule)
}

// Update handles PUT /api/v1/rules/{rule_id}
func (rh *RuleHandlers) Update(w http.ResponseWriter, r *http.Request) {
	rh.engine.TrackOperation()
	defer rh.engine.UntrackOperation()

	var incoming models.SyncRule
	if err := decodeBody(r, &incoming); err != nil {
		rh.engine.writeErrorResponse(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	existing, err := rh.engine.ruleRepo.Get(ctx, mux.Vars(r)["rule_id"])
	if err != nil {
		rh.engine.writeServiceError(w, err, "Failed to get rule")
		return
	}
	incoming.RuleID = existing.RuleID
	incoming.IntegrationID = existing.IntegrationID
	if err := rules.ValidateRule(&incoming); err != nil {
		rh.engine.writeErrorResponse(w, http.StatusBadRequest, "invalid rule", err.Error())
		return
	}

	updated, err := rh.engine.ruleRepo.Update(ctx, &incoming)
	if err != nil {
		rh.engine.writeServiceError(w, err, "Failed to update rule")
		return
	}
	rh.engine.writeJSONResponse(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/v1/rules/{rule_id}
func (rh *RuleHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	rh.engine.TrackOperation()
	defer rh.engine.UntrackOperation()

	ctx, cancel := requestContext(r)
	defer cancel()

	if err := rh.engine.ruleRepo.Delete(ctx, mux.Vars(r)["rule_id"]); err != nil {
		rh.engine.writeServiceError(w, err, "Failed to delete rule")
		return
	}
	rh.engine.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type toggleRequest struct {
	Enabled bool `json:"enabled"`
}

// Toggle handles POST /api/v1/rules/{rule_id}/toggle
func (rh *RuleHandlers) Toggle(w http.ResponseWriter, r *http.Request) {
	rh.engine.TrackOperation()
	defer rh.engine.UntrackOperation()

	var req toggleRequest
	if err := decodeBody(r, &req); err != nil {
		rh.engine.writeErrorResponse(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	if err := rh.engine.ruleRepo.SetEnabled(ctx, mux.Vars(r)["rule_id"], req.Enabled); err != nil {
		rh.engine.writeServiceError(w, err, "Failed to toggle rule")
		return
	}
	rh.engine.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"enabled": req.Enabled})
}

type triggerRequest struct {
	Record map[string]interface{} `json:"record,omitempty"`
}

// Trigger handles POST /api/v1/rules/{rule_id}/trigger
func (rh *RuleHandlers) Trigger(w http.ResponseWriter, r *http.Request) {
	rh.engine.TrackOperation()
	defer rh.engine.UntrackOperation()

	var req triggerRequest
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			rh.engine.writeErrorResponse(w, http.StatusBadRequest, "invalid request body", err.Error())
			return
		}
	}

	// Rule actions may run a full board sync.
	execution, err := rh.engine.rules.TriggerManually(r.Context(), mux.Vars(r)["rule_id"], req.Record)
	if err != nil {
		if errors.Is(err, rules.ErrRuleDisabled) {
			rh.engine.writeErrorResponse(w, http.StatusConflict, err.Error(), "")
			return
		}
		if errors.Is(err, rules.ErrRuleNotManual) {
			rh.engine.writeErrorResponse(w, http.StatusBadRequest, err.Error(), "")
			return
		}
		rh.engine.writeServiceError(w, err, "Failed to trigger rule")
		return
	}
	rh.engine.writeJSONResponse(w, http.StatusOK, execution)
}

// Test handles POST /api/v1/rules/{rule_id}/test
func (rh *RuleHandlers) Test(w http.ResponseWriter, r *http.Request) {
	rh.engine.TrackOperation()
	defer rh.engine.UntrackOperation()

	var ev rules.Event
	if err := decodeBody(r, &ev); err != nil {
		rh.engine.writeErrorResponse(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	report, err := rh.engine.rules.TestRule(ctx, mux.Vars(r)["rule_id"], ev)
	if err != nil {
		rh.engine.writeServiceError(w, err, "Failed to test rule")
		return
	}
	rh.engine.writeJSONResponse(w, http.StatusOK, report)
}

// ListExecutions handles GET /api/v1/rules/{rule_id}/executions
func (rh *RuleHandlers) ListExecutions(w http.ResponseWriter, r *http.Request) {
	rh.engine.TrackOperation()
	defer rh.engine.UntrackOperation()

	ctx, cancel := requestContext(r)
	defer cancel()

	executions, err := rh.engine.ruleRepo.ListExecutions(ctx, mux.Vars(r)["rule_id"], queryLimit(r, 50))
	if err != nil {
		rh.engine.writeServiceError(w, err, "Failed to list rule executions")
		return
	}
	rh.engine.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"executions": executions})
}
