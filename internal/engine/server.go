package engine

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// Server exposes the engine over REST.
type Server struct {
	engine             *Engine
	router             *mux.Router
	integrationHandler *IntegrationHandlers
	mappingHandler     *MappingHandlers
	syncLogHandler     *SyncLogHandlers
	conflictHandler    *ConflictHandlers
	ruleHandler        *RuleHandlers
}

// NewServer builds the router and handler set for an engine.
func NewServer(engine *Engine) *Server {
	s := &Server{
		engine:             engine,
		router:             mux.NewRouter(),
		integrationHandler: NewIntegrationHandlers(engine),
		mappingHandler:     NewMappingHandlers(engine),
		syncLogHandler:     NewSyncLogHandlers(engine),
		conflictHandler:    NewConflictHandlers(engine),
		ruleHandler:        NewRuleHandlers(engine),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Router returns the HTTP handler for the server.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	// CORS middleware
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	// Request logging middleware
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			if s.engine.logger != nil {
				s.engine.logger.Debugf("%s %s (%s)", r.Method, r.URL.Path, time.Since(start))
			}
		})
	})
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Integrations
	api.HandleFunc("/integrations", s.integrationHandler.Connect).Methods(http.MethodPost)
	api.HandleFunc("/integrations", s.integrationHandler.List).Methods(http.MethodGet)
	api.HandleFunc("/integrations/{integration_id}", s.integrationHandler.Get).Methods(http.MethodGet)
	api.HandleFunc("/integrations/{integration_id}", s.integrationHandler.Update).Methods(http.MethodPut)
	api.HandleFunc("/integrations/{integration_id}/test", s.integrationHandler.Test).Methods(http.MethodPost)
	api.HandleFunc("/integrations/{integration_id}/workspaces", s.integrationHandler.ListWorkspaces).Methods(http.MethodGet)
	api.HandleFunc("/integrations/{integration_id}/boards", s.integrationHandler.ListBoards).Methods(http.MethodGet)
	api.HandleFunc("/integrations/{integration_id}/boards/{board_id}/columns", s.integrationHandler.ListColumns).Methods(http.MethodGet)
	api.HandleFunc("/integrations/{integration_id}/sync-all", s.integrationHandler.SyncAll).Methods(http.MethodPost)
	api.HandleFunc("/integrations/{integration_id}/logs/summary", s.syncLogHandler.Summary).Methods(http.MethodGet)

	// Board mappings and their column mappings
	api.HandleFunc("/board-mappings", s.mappingHandler.Create).Methods(http.MethodPost)
	api.HandleFunc("/board-mappings", s.mappingHandler.List).Methods(http.MethodGet)
	api.HandleFunc("/board-mappings/{mapping_id}", s.mappingHandler.Get).Methods(http.MethodGet)
	api.HandleFunc("/board-mappings/{mapping_id}", s.mappingHandler.Update).Methods(http.MethodPut)
	api.HandleFunc("/board-mappings/{mapping_id}", s.mappingHandler.Delete).Methods(http.MethodDelete)
	api.HandleFunc("/board-mappings/{mapping_id}/column-mappings", s.mappingHandler.CreateColumnMapping).Methods(http.MethodPost)
	api.HandleFunc("/board-mappings/{mapping_id}/column-mappings", s.mappingHandler.ListColumnMappings).Methods(http.MethodGet)
	api.HandleFunc("/board-mappings/{mapping_id}/column-mappings/{column_mapping_id}", s.mappingHandler.UpdateColumnMapping).Methods(http.MethodPut)
	api.HandleFunc("/board-mappings/{mapping_id}/column-mappings/{column_mapping_id}", s.mappingHandler.DeleteColumnMapping).Methods(http.MethodDelete)
	api.HandleFunc("/board-mappings/{mapping_id}/pull", s.mappingHandler.Pull).Methods(http.MethodPost)
	api.HandleFunc("/board-mappings/{mapping_id}/push", s.mappingHandler.Push).Methods(http.MethodPost)
	api.HandleFunc("/board-mappings/{mapping_id}/logs", s.syncLogHandler.ListForMapping).Methods(http.MethodGet)
	api.HandleFunc("/board-mappings/{mapping_id}/conflicts/stats", s.conflictHandler.Stats).Methods(http.MethodGet)

	// Sync logs
	api.HandleFunc("/sync-logs/{log_id}", s.syncLogHandler.Get).Methods(http.MethodGet)

	// Conflicts
	api.HandleFunc("/conflicts", s.conflictHandler.List).Methods(http.MethodGet)
	api.HandleFunc("/conflicts/resolve-batch", s.conflictHandler.ResolveBatch).Methods(http.MethodPost)
	api.HandleFunc("/conflicts/{conflict_id}/resolve", s.conflictHandler.Resolve).Methods(http.MethodPost)

	// Rules
	api.HandleFunc("/rules", s.ruleHandler.Create).Methods(http.MethodPost)
	api.HandleFunc("/rules", s.ruleHandler.List).Methods(http.MethodGet)
	api.HandleFunc("/rules/{rule_id}", s.ruleHandler.Get).Methods(http.MethodGet)
	api.HandleFunc("/rules/{rule_id}", s.ruleHandler.Update).Methods(http.MethodPut)
	api.HandleFunc("/rules/{rule_id}", s.ruleHandler.Delete).Methods(http.MethodDelete)
	api.HandleFunc("/rules/{rule_id}/toggle", s.ruleHandler.Toggle).Methods(http.MethodPost)
	api.HandleFunc("/rules/{rule_id}/trigger", s.ruleHandler.Trigger).Methods(http.MethodPost)
	api.HandleFunc("/rules/{rule_id}/test", s.ruleHandler.Test).Methods(http.MethodPost)
	api.HandleFunc("/rules/{rule_id}/executions", s.ruleHandler.ListExecutions).Methods(http.MethodGet)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.CheckHealth(); err != nil {
		s.engine.writeJSONResponse(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	s.engine.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "healthy"})
}
