package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrBoardBusy is returned when another run already holds a board's lock.
var ErrBoardBusy = errors.New("board sync already in progress")

// Locker serializes runs against a single external board. Runs for
// different boards proceed concurrently; batches for one board never
// overlap in flight.
type Locker interface {
	// Acquire takes the lock for key or fails fast with ErrBoardBusy.
	// The returned release function is safe to call once.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// MemoryLocker serializes boards within one process.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewMemoryLocker creates an in-process board locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]bool)}
}

// Acquire takes the in-process lock for key.
func (l *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[key] {
		return nil, fmt.Errorf("%s: %w", key, ErrBoardBusy)
	}
	l.held[key] = true

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}
	return release, nil
}

// releaseScript deletes the lock only when the token still matches, so
// an expired lock re-acquired by another run is never released here.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker serializes boards across processes with SET NX locks.
type RedisLocker struct {
	client *redis.Client
}

// NewRedisLocker creates a Redis-backed board locker.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

// Acquire takes the distributed lock for key with the given TTL.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	lockKey := fmt.Sprintf("boardsync:lock:%s", key)
	token := uuid.New().String()

	ok, err := l.client.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire board lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrBoardBusy)
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = releaseScript.Run(releaseCtx, l.client, []string{lockKey}, token).Err()
		})
	}
	return release, nil
}
