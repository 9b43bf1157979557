package batch

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/boardsync/boardsync/internal/boardapi"
	"github.com/boardsync/boardsync/pkg/logger"
)

// Operation is one unit of external work with a stable id the caller
// can correlate results against.
type Operation struct {
	ID      string
	Payload interface{}
}

// Result is the individual outcome of one operation. Every operation
// handed to Execute produces exactly one Result.
type Result struct {
	ID      string
	Success bool
	Message string
	Output  interface{}
}

// BatchFunc performs one batch of operations against the external API.
// It returns per-operation results, or an error covering the whole
// batch. A rate-limit error triggers a retry of the same batch.
type BatchFunc func(ctx context.Context, ops []Operation) ([]Result, error)

// Report aggregates the outcome of an Execute run. The invariant
// Processed == Succeeded+Failed always holds; no operation is dropped.
type Report struct {
	Processed     int
	Succeeded     int
	Failed        int
	Batches       int
	RateLimitHits int
	Results       []Result
}

// Executor runs operation lists in sequential batches with backoff on
// rate-limit signals. One executor serves one run; the tracker it owns
// is never shared across runs.
type Executor struct {
	cfg          Config
	explicitSize bool
	tracker      *Tracker
	window       Window
	rateKey      string
	logger       *logger.Logger

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() time.Duration
}

// NewExecutor creates an executor with the given per-run configuration.
// A positive BatchSize is an explicit override; only an unset size
// hands sizing to the heuristic.
func NewExecutor(cfg Config, opts ...ExecutorOption) *Executor {
	e := &Executor{
		cfg:          cfg.withDefaults(),
		explicitSize: cfg.BatchSize > 0,
		tracker:      NewTracker(RateLimitWindow, MaxRequestsPerMinute),
		sleep:        sleepCtx,
		jitter: func() time.Duration {
			return time.Duration(rand.Int63n(int64(maxJitter)))
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithTracker replaces the per-run call tracker.
func WithTracker(t *Tracker) ExecutorOption {
	return func(e *Executor) { e.tracker = t }
}

// WithWindow attaches a shared rate window keyed by rateKey, letting
// multiple processes draw on one board's budget.
func WithWindow(w Window, rateKey string) ExecutorOption {
	return func(e *Executor) {
		e.window = w
		e.rateKey = rateKey
	}
}

// WithLogger attaches a logger for batch-level tracing.
func WithLogger(l *logger.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

// Tracker exposes the per-run call tracker for metric collection.
func (e *Executor) Tracker() *Tracker {
	return e.tracker
}

// Execute partitions ops by the sizing heuristic (or the configured
// override) and runs the batches sequentially. Rate-limit errors back
// off exponentially and retry the same batch up to the retry ceiling;
// any other batch error marks every operation in that batch failed and
// moves on.
func (e *Executor) Execute(ctx context.Context, ops []Operation, do BatchFunc) Report {
	report := Report{}
	if len(ops) == 0 {
		return report
	}

	size := e.cfg.BatchSize
	if !e.explicitSize {
		size = OptimalBatchSize(len(ops), e.cfg)
	}
	batches := Partition(ops, size)

	for i, batchOps := range batches {
		results := e.runBatch(ctx, batchOps, do, &report)
		report.Batches++
		for _, res := range results {
			report.Processed++
			if res.Success {
				report.Succeeded++
			} else {
				report.Failed++
			}
		}
		report.Results = append(report.Results, results...)

		if i < len(batches)-1 {
			delay := e.cfg.InterBatchDelay
			if risk := e.tracker.CheckRateLimitRisk(); risk.RecommendedDelay > delay {
				delay = risk.RecommendedDelay
			}
			if err := e.sleep(ctx, delay); err != nil {
				// Context gone: report the remaining operations as failed
				for _, remaining := range batches[i+1:] {
					for _, op := range remaining {
						report.Processed++
						report.Failed++
						report.Results = append(report.Results, Result{
							ID:      op.ID,
							Message: fmt.Sprintf("run aborted: %v", err),
						})
					}
				}
				return report
			}
		}
	}
	return report
}

// runBatch executes one batch with the retry loop. It always returns
// exactly one result per operation.
func (e *Executor) runBatch(ctx context.Context, ops []Operation, do BatchFunc, report *Report) []Result {
	for attempt := 1; ; attempt++ {
		if e.window != nil {
			if count, err := e.window.Hit(ctx, e.rateKey); err == nil && count > int64(MaxRequestsPerMinute) {
				e.logf("shared rate window exhausted (%d calls), pausing", count)
				if err := e.sleep(ctx, e.backoff(attempt)); err != nil {
					return failAll(ops, fmt.Sprintf("run aborted: %v", err))
				}
			}
		}

		start := time.Now()
		results, err := do(ctx, ops)
		e.tracker.Record(time.Since(start), err == nil)

		if err == nil {
			return normalize(ops, results)
		}

		if boardapi.IsRateLimit(err) {
			report.RateLimitHits++
			if attempt > e.cfg.MaxRetries {
				return failAll(ops, fmt.Sprintf("rate limit retries exhausted: %v", err))
			}
			wait := e.backoff(attempt)
			e.logf("rate limit hit, backing off %s (attempt %d/%d)", wait, attempt, e.cfg.MaxRetries)
			if sleepErr := e.sleep(ctx, wait); sleepErr != nil {
				return failAll(ops, fmt.Sprintf("run aborted: %v", sleepErr))
			}
			continue
		}

		// Non-rate-limit errors are terminal for the batch: no retry
		return failAll(ops, fmt.Sprintf("batch error: %v", err))
	}
}

// backoff computes the exponential wait for the given attempt with
// random jitter: base * 2^(attempt-1) + jitter.
func (e *Executor) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	wait := e.cfg.BackoffBase << (attempt - 1)
	return wait + e.jitter()
}

func (e *Executor) logf(format string, args ...interface{}) {
	if e.logger != nil {
		e.logger.Debugf(format, args...)
	}
}

// normalize guarantees one result per operation even when the batch
// function under-reports.
func normalize(ops []Operation, results []Result) []Result {
	byID := make(map[string]Result, len(results))
	for _, r := range results {
		byID[r.ID] = r
	}
	out := make([]Result, 0, len(ops))
	for _, op := range ops {
		if r, ok := byID[op.ID]; ok {
			out = append(out, r)
			continue
		}
		out = append(out, Result{ID: op.ID, Message: "no result reported for operation"})
	}
	return out
}

func failAll(ops []Operation, message string) []Result {
	out := make([]Result, 0, len(ops))
	for _, op := range ops {
		out = append(out, Result{ID: op.ID, Message: message})
	}
	return out
}

// sleepCtx waits for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
