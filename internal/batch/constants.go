// Package batch partitions lists of external API operations into
// rate-limit-respecting batches and executes them with retry and
// per-item outcome reporting.
package batch

import "time"

// Tuning constants for batch sizing and rate-limit handling.
const (
	DefaultBatchSize = 50
	MaxBatchSize     = 100
	MinBatchSize     = 10

	DefaultPageSize = 100

	RateLimitWindow      = 60 * time.Second
	MaxRequestsPerMinute = 100

	DelayBetweenBatches = 100 * time.Millisecond

	MaxRetries  = 3
	BackoffBase = 500 * time.Millisecond
	maxJitter   = 200 * time.Millisecond
)

// Config carries per-run overrides for the sizing heuristic and the
// executor. Zero values fall back to the package defaults.
type Config struct {
	BatchSize       int
	MinBatch        int
	MaxBatch        int
	InterBatchDelay time.Duration
	MaxRetries      int
	BackoffBase     time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MinBatch <= 0 {
		c.MinBatch = MinBatchSize
	}
	if c.MaxBatch <= 0 {
		c.MaxBatch = MaxBatchSize
	}
	if c.InterBatchDelay <= 0 {
		c.InterBatchDelay = DelayBetweenBatches
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = MaxRetries
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = BackoffBase
	}
	return c
}

// OptimalBatchSize picks a batch size for n operations: tiny workloads
// collapse into one or two batches, mid-size workloads use ~n/4, very
// large workloads ~n/20, everything else ~n/10, all bounded by the
// configured [min, max] range.
func OptimalBatchSize(n int, cfg Config) int {
	cfg = cfg.withDefaults()

	if n <= 0 {
		return cfg.MinBatch
	}
	if n <= 2*cfg.MinBatch {
		return (n + 1) / 2
	}
	if n <= 100 {
		return clamp(n/4, cfg.MinBatch, cfg.MaxBatch)
	}
	if n >= 1000 {
		return clamp(maxInt(cfg.BatchSize, n/20), cfg.MinBatch, cfg.MaxBatch)
	}
	return clamp(maxInt(cfg.BatchSize, n/10), cfg.MinBatch, cfg.MaxBatch)
}

// Partition splits ops into batches of at most size elements,
// preserving order.
func Partition(ops []Operation, size int) [][]Operation {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var batches [][]Operation
	for start := 0; start < len(ops); start += size {
		end := start + size
		if end > len(ops) {
			end = len(ops)
		}
		batches = append(batches, ops[start:end])
	}
	return batches
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
