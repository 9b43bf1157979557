package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CallRecord is one observed external API call.
type CallRecord struct {
	Time     time.Time
	Duration time.Duration
	Success  bool
}

// Tracker observes external API calls for one run. It is injected per
// executor instance rather than shared process-wide, so concurrent runs
// for different tenants never interfere.
type Tracker struct {
	mu     sync.Mutex
	calls  []CallRecord
	window time.Duration
	budget int
	now    func() time.Time
}

// NewTracker creates a tracker with the given rate window and budget.
func NewTracker(window time.Duration, budget int) *Tracker {
	if window <= 0 {
		window = RateLimitWindow
	}
	if budget <= 0 {
		budget = MaxRequestsPerMinute
	}
	return &Tracker{
		window: window,
		budget: budget,
		now:    time.Now,
	}
}

// Record registers one completed API call.
func (t *Tracker) Record(duration time.Duration, success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, CallRecord{Time: t.now(), Duration: duration, Success: success})
}

// CallCount returns the total number of recorded calls.
func (t *Tracker) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

// recentCalls returns the calls inside the current window. Caller holds the lock.
func (t *Tracker) recentCalls() []CallRecord {
	cutoff := t.now().Add(-t.window)
	var recent []CallRecord
	for _, c := range t.calls {
		if c.Time.After(cutoff) {
			recent = append(recent, c)
		}
	}
	return recent
}

// Risk describes current rate-limit pressure with a recommended pause.
type Risk struct {
	Utilization      float64
	AtRisk           bool
	RecommendedDelay time.Duration
}

// CheckRateLimitRisk computes window utilization and recommends an
// extra inter-batch delay when the budget is running hot.
func (t *Tracker) CheckRateLimitRisk() Risk {
	t.mu.Lock()
	defer t.mu.Unlock()

	used := len(t.recentCalls())
	utilization := float64(used) / float64(t.budget)

	risk := Risk{Utilization: utilization}
	switch {
	case utilization > 0.9:
		risk.AtRisk = true
		risk.RecommendedDelay = time.Second
	case utilization > 0.7:
		risk.AtRisk = true
		risk.RecommendedDelay = 500 * time.Millisecond
	case utilization > 0.5:
		risk.RecommendedDelay = 200 * time.Millisecond
	}
	return risk
}

// ShouldThrottle reports whether calls should be paused outright:
// either the window budget is exhausted or the recent error rate
// crossed 10%.
func (t *Tracker) ShouldThrottle() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	recent := t.recentCalls()
	if len(recent) >= t.budget {
		return true
	}
	if len(recent) == 0 {
		return false
	}
	failures := 0
	for _, c := range recent {
		if !c.Success {
			failures++
		}
	}
	return float64(failures)/float64(len(recent)) > 0.1
}

// Window is a shared rate-limit counter. The Redis implementation lets
// multiple processes share one board's budget; the tracker alone covers
// the single-process case.
type Window interface {
	// Hit registers one call and returns the count within the window.
	Hit(ctx context.Context, key string) (int64, error)
}

// RedisWindow counts calls in Redis with a window-sized expiry.
type RedisWindow struct {
	client *redis.Client
	window time.Duration
}

// NewRedisWindow creates a shared window counter over the given client.
func NewRedisWindow(client *redis.Client, window time.Duration) *RedisWindow {
	if window <= 0 {
		window = RateLimitWindow
	}
	return &RedisWindow{client: client, window: window}
}

// Hit increments the window counter, setting the expiry on first use.
func (w *RedisWindow) Hit(ctx context.Context, key string) (int64, error) {
	windowKey := fmt.Sprintf("boardsync:ratewindow:%s", key)
	count, err := w.client.Incr(ctx, windowKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment rate window: %w", err)
	}
	if count == 1 {
		if err := w.client.Expire(ctx, windowKey, w.window).Err(); err != nil {
			return count, fmt.Errorf("failed to set window expiry: %w", err)
		}
	}
	return count, nil
}
