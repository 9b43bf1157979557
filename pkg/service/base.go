package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/boardsync/boardsync/pkg/config"
	"github.com/boardsync/boardsync/pkg/health"
	"github.com/boardsync/boardsync/pkg/logger"
)

// State represents the lifecycle state of a service
type State string

const (
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
)

// Service interface that the service implementation must satisfy
type Service interface {
	// Initialize is called before the HTTP server starts serving
	Initialize(ctx context.Context, config *config.Config) error

	// Start begins the service's main work
	Start(ctx context.Context) error

	// Stop gracefully shuts down the service
	Stop(ctx context.Context, gracePeriod time.Duration) error

	// CollectMetrics returns current service metrics
	CollectMetrics() map[string]int64

	// HealthChecks returns service-specific health check functions
	HealthChecks() map[string]health.CheckFunc
}

// HTTPHandlerAware is an optional interface that services can implement
// to expose an HTTP API through the shared server
type HTTPHandlerAware interface {
	HTTPHandler() http.Handler
}

// LoggerAware is an optional interface that services can implement
// if they need access to the logger
type LoggerAware interface {
	SetLogger(logger *logger.Logger)
}

// BaseService provides common lifecycle management for the service
type BaseService struct {
	// Service identification
	Name       string
	Version    string
	InstanceID string

	// Network configuration
	Port int

	// Core components
	Logger        *logger.Logger
	Config        *config.Config
	HealthChecker *health.Checker

	// State management
	mu        sync.RWMutex
	state     State
	stopCh    chan struct{}
	stoppedCh chan struct{}

	// Service implementation
	impl Service

	httpServer *http.Server
	listener   net.Listener

	cpu cpuTracker
}

// NewBaseService creates a new base service instance
func NewBaseService(name, version string, port int, impl Service) *BaseService {
	return &BaseService{
		Name:          name,
		Version:       version,
		InstanceID:    uuid.New().String(),
		Port:          port,
		Logger:        logger.New(name, version),
		Config:        config.New(),
		HealthChecker: health.NewChecker(),
		stopCh:        make(chan struct{}),
		stoppedCh:     make(chan struct{}),
		impl:          impl,
	}
}

// Run starts the service and manages its lifecycle
func (s *BaseService) Run(ctx context.Context) error {
	s.setState(StateStarting)

	if loggerAware, ok := s.impl.(LoggerAware); ok {
		loggerAware.SetLogger(s.Logger)
	}

	if err := s.impl.Initialize(ctx, s.Config); err != nil {
		return fmt.Errorf("failed to initialize service: %w", err)
	}
	s.Logger.Infof("Service implementation initialized successfully")

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	s.Logger.Infof("Starting background tasks...")
	go s.healthCheckLoop(ctx)
	go s.metricsLoop(ctx)

	if err := s.impl.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}

	s.setState(StateRunning)
	s.Logger.Info("Service started successfully")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		s.Logger.Info("Received shutdown signal")
	case <-s.stopCh:
		s.Logger.Info("Received stop command")
	case <-ctx.Done():
		s.Logger.Info("Context cancelled")
	}

	s.setState(StateStopping)
	return s.shutdown(ctx)
}

// Stop requests a graceful shutdown from outside the Run loop
func (s *BaseService) Stop() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
}

// State returns the current lifecycle state
func (s *BaseService) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *BaseService) startHTTPServer() error {
	handlerAware, ok := s.impl.(HTTPHandlerAware)
	if !ok {
		return fmt.Errorf("service implementation does not expose an HTTP handler")
	}

	maxRetries := 3
	retryDelay := time.Second

	var lis net.Listener
	var err error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		lis, err = net.Listen("tcp", fmt.Sprintf(":%d", s.Port))
		if err == nil {
			break
		}
		if attempt < maxRetries {
			s.Logger.Warnf("Failed to bind to port %d (attempt %d/%d): %v, retrying...", s.Port, attempt, maxRetries, err)
			time.Sleep(retryDelay)
			retryDelay *= 2
		}
	}
	if err != nil {
		return fmt.Errorf("failed to listen on port %d after %d attempts: %w", s.Port, maxRetries, err)
	}

	s.listener = lis
	s.httpServer = &http.Server{
		Handler:      handlerAware.HTTPHandler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		if serveErr := s.httpServer.Serve(lis); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.Logger.Errorf("HTTP server error: %v", serveErr)
		}
	}()

	s.Logger.Infof("HTTP server started on port %d", s.Port)
	return nil
}

func (s *BaseService) healthCheckLoop(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	checks := s.impl.HealthChecks()

	for {
		select {
		case <-ticker.C:
			for name, checkFunc := range checks {
				s.HealthChecker.RunCheck(name, checkFunc)
			}

		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		}
	}
}

func (s *BaseService) metricsLoop(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics := s.impl.CollectMetrics()
			s.Logger.WithFields(map[string]string{
				"goroutines": fmt.Sprintf("%d", runtime.NumGoroutine()),
				"memory":     fmt.Sprintf("%d", memoryAlloc()),
				"cpu_pct":    fmt.Sprintf("%.1f", s.cpu.Sample()),
				"operations": fmt.Sprintf("%d", metrics["ongoing_operations"]),
			}).Debug("Service metrics")

		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		}
	}
}

func (s *BaseService) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *BaseService) shutdown(ctx context.Context) error {
	s.Logger.Info("Starting graceful shutdown")

	gracePeriod := 30 * time.Second
	if err := s.impl.Stop(ctx, gracePeriod); err != nil {
		s.Logger.Errorf("Service implementation shutdown error: %v", err)
	}

	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.Logger.Errorf("HTTP server shutdown error: %v", err)
		}
	}

	close(s.stoppedCh)
	s.setState(StateStopped)
	s.Logger.Info("Service stopped")

	return nil
}
