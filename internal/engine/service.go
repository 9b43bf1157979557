package engine

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/boardsync/boardsync/pkg/config"
	"github.com/boardsync/boardsync/pkg/health"
	"github.com/boardsync/boardsync/pkg/logger"
)

// Service adapts the engine to the shared service lifecycle.
type Service struct {
	engine *Engine
	server *Server
	logger *logger.Logger
}

// NewService creates the sync service.
func NewService() *Service {
	return &Service{}
}

// SetLogger propagates the shared logger into the engine.
func (s *Service) SetLogger(logger *logger.Logger) {
	s.logger = logger
	if s.engine != nil {
		s.engine.SetLogger(logger)
	}
}

// Initialize builds the engine and its REST server.
func (s *Service) Initialize(ctx context.Context, cfg *config.Config) error {
	s.engine = NewEngine(cfg)
	if s.logger != nil {
		s.engine.SetLogger(s.logger)
	}
	s.server = NewServer(s.engine)
	return nil
}

// Start brings up storage and the domain services.
func (s *Service) Start(ctx context.Context) error {
	return s.engine.Start(ctx)
}

// Stop shuts the engine down within the grace period.
func (s *Service) Stop(ctx context.Context, gracePeriod time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, gracePeriod)
	defer cancel()
	return s.engine.Stop(ctx)
}

// HTTPHandler exposes the REST router through the shared HTTP server.
func (s *Service) HTTPHandler() http.Handler {
	return s.server.Router()
}

// CollectMetrics returns the engine's counters.
func (s *Service) CollectMetrics() map[string]int64 {
	if s.engine == nil {
		return nil
	}
	return s.engine.GetMetrics()
}

// HealthChecks exposes the engine health checks.
func (s *Service) HealthChecks() map[string]health.CheckFunc {
	return map[string]health.CheckFunc{
		"engine": func() error {
			if s.engine == nil {
				return fmt.Errorf("engine not initialized")
			}
			return s.engine.CheckHealth()
		},
	}
}
