// Package engine wires the sync services together and exposes them
// over REST.
package engine

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/boardsync/boardsync/internal/batch"
	"github.com/boardsync/boardsync/internal/conflict"
	"github.com/boardsync/boardsync/internal/repository"
	"github.com/boardsync/boardsync/internal/rules"
	"github.com/boardsync/boardsync/internal/scheduler"
	"github.com/boardsync/boardsync/internal/store"
	"github.com/boardsync/boardsync/internal/syncer"
	"github.com/boardsync/boardsync/pkg/config"
	"github.com/boardsync/boardsync/pkg/database"
	"github.com/boardsync/boardsync/pkg/logger"
)

// Engine owns the database connections, repositories, and domain
// services for the sync process.
type Engine struct {
	config *config.Config
	logger *logger.Logger

	db    *database.PostgreSQL
	redis *database.Redis

	integrations  *repository.Integrations
	boardMappings *repository.BoardMappings
	itemMappings  *repository.ItemMappings
	syncLogs      *repository.SyncLogs
	conflicts     *repository.Conflicts
	ruleRepo      *repository.Rules
	records       store.RecordStore

	sync      *syncer.Syncer
	resolver  *conflict.Resolver
	applier   *conflict.Applier
	rules     *rules.Engine
	scheduler *scheduler.Scheduler

	state struct {
		sync.Mutex
		isRunning         bool
		ongoingOperations int32
	}
	metrics struct {
		requestsProcessed int64
		errors            int64
	}
}

// NewEngine creates an engine bound to the given configuration.
func NewEngine(cfg *config.Config) *Engine {
	return &Engine{config: cfg}
}

// SetLogger sets the logger for the engine
func (e *Engine) SetLogger(logger *logger.Logger) {
	e.logger = logger
}

// Start connects storage, migrates the schema, and builds the service
// graph. Redis is optional; without it the per-board lock and the rate
// window degrade to in-process variants.
func (e *Engine) Start(ctx context.Context) error {
	e.state.Lock()
	if e.state.isRunning {
		e.state.Unlock()
		return fmt.Errorf("engine is already running")
	}
	e.state.isRunning = true
	e.state.Unlock()

	db, err := database.New(ctx, database.FromGlobalConfig(e.config))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	e.db = db

	if err := repository.Migrate(ctx, db); err != nil {
		db.Close()
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	e.integrations = repository.NewIntegrations(db, e.logger)
	e.boardMappings = repository.NewBoardMappings(db, e.logger)
	e.itemMappings = repository.NewItemMappings(db, e.logger)
	e.syncLogs = repository.NewSyncLogs(db, e.logger)
	e.conflicts = repository.NewConflicts(db, e.logger)
	e.ruleRepo = repository.NewRules(db, e.logger)
	e.records = repository.NewDocuments(db, e.logger)

	var locker syncer.Locker
	var window batch.Window
	if e.config.GetWithDefault("redis.enabled", "true") == "true" {
		redisConn, err := database.NewRedis(ctx, database.RedisFromGlobalConfig(e.config))
		if err != nil {
			if e.logger != nil {
				e.logger.Warnf("Redis unavailable, falling back to in-process locking: %v", err)
			}
		} else {
			e.redis = redisConn
			locker = syncer.NewRedisLocker(redisConn.Client())
			window = batch.NewRedisWindow(redisConn.Client(), batch.RateLimitWindow)
		}
	}

	e.sync = syncer.New(syncer.Deps{
		Integrations:  e.integrations,
		BoardMappings: e.boardMappings,
		ItemMappings:  e.itemMappings,
		Conflicts:     e.conflicts,
		Records:       e.records,
		SyncLogs:      e.syncLogs,
		Locker:        locker,
		Window:        window,
		Logger:        e.logger,
	})
	e.resolver = conflict.NewResolver(e.conflicts)
	e.applier = conflict.NewApplier(e.conflicts, e.records, e.itemMappings)
	e.rules = rules.NewEngine(rules.Deps{
		Rules:         e.ruleRepo,
		Sync:          e.sync,
		Records:       e.records,
		Integrations:  e.integrations,
		BoardMappings: e.boardMappings,
		ItemMappings:  e.itemMappings,
		Logger:        e.logger,
	})
	e.scheduler = scheduler.New(e.integrations, e.ruleRepo, e.rules, e.sync, e.logger,
		e.config.GetDuration("scheduler.tick", scheduler.DefaultTick))
	e.scheduler.Start(context.Background())

	if e.logger != nil {
		e.logger.Infof("Sync engine started")
	}
	return nil
}

// Stop halts the scheduler and closes storage connections.
func (e *Engine) Stop(ctx context.Context) error {
	e.state.Lock()
	if !e.state.isRunning {
		e.state.Unlock()
		return nil
	}
	e.state.isRunning = false
	e.state.Unlock()

	if e.scheduler != nil {
		e.scheduler.Stop()
	}
	if e.redis != nil {
		e.redis.Close()
	}
	if e.db != nil {
		e.db.Close()
	}
	return nil
}

// CheckHealth reports whether the engine is running and its database
// is reachable.
func (e *Engine) CheckHealth() error {
	e.state.Lock()
	running := e.state.isRunning
	e.state.Unlock()
	if !running {
		return fmt.Errorf("service not initialized")
	}
	if e.db == nil {
		return fmt.Errorf("database not connected")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return e.db.Pool().Ping(ctx)
}

// GetMetrics returns the engine's request counters.
func (e *Engine) GetMetrics() map[string]int64 {
	return map[string]int64{
		"requests_processed": atomic.LoadInt64(&e.metrics.requestsProcessed),
		"errors":             atomic.LoadInt64(&e.metrics.errors),
		"ongoing_operations": int64(atomic.LoadInt32(&e.state.ongoingOperations)),
	}
}

func (e *Engine) TrackOperation() {
	atomic.AddInt32(&e.state.ongoingOperations, 1)
	atomic.AddInt64(&e.metrics.requestsProcessed, 1)
}

func (e *Engine) UntrackOperation() {
	atomic.AddInt32(&e.state.ongoingOperations, -1)
}

func (e *Engine) TrackError() {
	atomic.AddInt64(&e.metrics.errors, 1)
}

// requestTimeout bounds every handler's downstream work.
const requestTimeout = 30 * time.Second

func requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), requestTimeout)
}
