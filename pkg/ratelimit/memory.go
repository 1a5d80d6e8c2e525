// edgewall/pkg/ratelimit/memory.go

package ratelimit

import (
	"sync"
	"time"
)

type entryKey struct {
	counter string
	key     string
}

type entry struct {
	windowStart  time.Time
	count        uint32
	penaltyUntil time.Time
}

// MemoryLimiter is a process-local fixed-window limiter with a penalty
// box. A client that trips the limit stays blocked for the full block
// TTL; when the penalty expires the entry restarts with a fresh window.
type MemoryLimiter struct {
	mu      sync.Mutex
	entries map[entryKey]*entry
	now     func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		entries: make(map[entryKey]*entry),
		now:     time.Now,
	}
}

// NewMemoryLimiterWithClock substitutes the clock, for tests.
func NewMemoryLimiterWithClock(now func() time.Time) *MemoryLimiter {
	l := NewMemoryLimiter()
	l.now = now
	return l
}

func (l *MemoryLimiter) Check(counterName, key string, window time.Duration, maxRequests uint32, blockTTL time.Duration) (Decision, error) {
	now := l.now()
	k := entryKey{counter: counterName, key: key}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[k]
	if ok && !e.penaltyUntil.IsZero() {
		if now.Before(e.penaltyUntil) {
			return Exceeded, nil
		}
		// Penalty served; restart the window rather than re-tripping on
		// the stale count.
		delete(l.entries, k)
		ok = false
	}

	if !ok {
		e = &entry{windowStart: now}
		l.entries[k] = e
	}

	if now.Sub(e.windowStart) >= window {
		e.windowStart = now
		e.count = 0
	}
	e.count++

	if e.count > maxRequests {
		e.penaltyUntil = now.Add(blockTTL)
		return Exceeded, nil
	}
	return Ok, nil
}

// Sweep drops entries whose penalty has lapsed and whose window has
// gone idle. Callers run it periodically; evaluation never blocks on it.
func (l *MemoryLimiter) Sweep(window time.Duration) int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for k, e := range l.entries {
		penaltyDone := e.penaltyUntil.IsZero() || now.After(e.penaltyUntil)
		windowIdle := now.Sub(e.windowStart) >= window
		if penaltyDone && windowIdle {
			delete(l.entries, k)
			removed++
		}
	}
	return removed
}

// Len reports the number of live entries, for dashboard stats.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
