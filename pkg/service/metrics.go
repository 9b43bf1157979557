package service

import (
	"runtime"
	"sync"
	"syscall"
	"time"
)

// memoryAlloc reports the bytes of live heap objects.
func memoryAlloc() int64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return int64(m.Alloc)
}

// cpuTracker derives process CPU utilization from successive rusage
// samples. The first sample only seeds the baseline and reports zero.
type cpuTracker struct {
	mu       sync.Mutex
	lastWall time.Time
	lastCPU  time.Duration
}

// Sample returns the percentage of one CPU consumed since the previous
// call, user plus system time.
func (t *cpuTracker) Sample() float64 {
	var ru syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &ru); err != nil {
		return 0
	}
	cpu := time.Duration(ru.Utime.Nano() + ru.Stime.Nano())
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.lastWall.IsZero() {
		t.lastWall, t.lastCPU = now, cpu
		return 0
	}

	wall := now.Sub(t.lastWall)
	used := cpu - t.lastCPU
	t.lastWall, t.lastCPU = now, cpu

	if wall <= 0 || used < 0 {
		return 0
	}
	return 100 * used.Seconds() / wall.Seconds()
}
