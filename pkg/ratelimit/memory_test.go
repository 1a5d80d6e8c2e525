package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is an adjustable clock for deterministic window tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// TestPenaltyBoxSequence walks the canonical limit-and-recover sequence:
// five allowed requests, a sixth that trips the penalty, and recovery
// after the block TTL lapses.
func TestPenaltyBoxSequence(t *testing.T) {
	clock := newFakeClock()
	l := NewMemoryLimiterWithClock(clock.Now)

	window := 10 * time.Second
	blockTTL := 1 * time.Second

	for i := 0; i < 5; i++ {
		d, err := l.Check("api", "1.2.3.4", window, 5, blockTTL)
		require.NoError(t, err)
		assert.Equal(t, Ok, d, "request %d should pass", i+1)
	}

	d, err := l.Check("api", "1.2.3.4", window, 5, blockTTL)
	require.NoError(t, err)
	assert.Equal(t, Exceeded, d, "sixth request trips the limit")

	// Still inside the penalty.
	clock.Advance(500 * time.Millisecond)
	d, _ = l.Check("api", "1.2.3.4", window, 5, blockTTL)
	assert.Equal(t, Exceeded, d)

	// Penalty served; the window restarts fresh.
	clock.Advance(1 * time.Second)
	d, _ = l.Check("api", "1.2.3.4", window, 5, blockTTL)
	assert.Equal(t, Ok, d, "client recovers after the block TTL")
}

// TestPenaltyStickyWithinTTL verifies requests during the penalty do not
// extend or reset it.
func TestPenaltyStickyWithinTTL(t *testing.T) {
	clock := newFakeClock()
	l := NewMemoryLimiterWithClock(clock.Now)

	window := 10 * time.Second
	blockTTL := 5 * time.Second

	l.Check("api", "k", window, 1, blockTTL)
	d, _ := l.Check("api", "k", window, 1, blockTTL)
	require.Equal(t, Exceeded, d)

	for i := 0; i < 4; i++ {
		clock.Advance(1 * time.Second)
		d, _ = l.Check("api", "k", window, 1, blockTTL)
		assert.Equal(t, Exceeded, d, "hammering does not extend the penalty")
	}

	clock.Advance(2 * time.Second)
	d, _ = l.Check("api", "k", window, 1, blockTTL)
	assert.Equal(t, Ok, d)
}

// TestWindowReset verifies the count resets when the fixed window rolls
// over without the limit being hit.
func TestWindowReset(t *testing.T) {
	clock := newFakeClock()
	l := NewMemoryLimiterWithClock(clock.Now)

	window := 10 * time.Second

	for i := 0; i < 5; i++ {
		d, _ := l.Check("api", "k", window, 5, time.Minute)
		assert.Equal(t, Ok, d)
	}

	clock.Advance(11 * time.Second)
	for i := 0; i < 5; i++ {
		d, _ := l.Check("api", "k", window, 5, time.Minute)
		assert.Equal(t, Ok, d, "fresh window, request %d", i+1)
	}
}

// TestCountersAreIndependent verifies isolation across counter names and
// keys.
func TestCountersAreIndependent(t *testing.T) {
	clock := newFakeClock()
	l := NewMemoryLimiterWithClock(clock.Now)

	window := 10 * time.Second

	l.Check("api", "1.1.1.1", window, 1, time.Minute)
	d, _ := l.Check("api", "1.1.1.1", window, 1, time.Minute)
	require.Equal(t, Exceeded, d)

	d, _ = l.Check("api", "2.2.2.2", window, 1, time.Minute)
	assert.Equal(t, Ok, d, "other key unaffected")

	d, _ = l.Check("login", "1.1.1.1", window, 1, time.Minute)
	assert.Equal(t, Ok, d, "other counter unaffected")
}

// TestSweep verifies idle entries are reclaimed and active ones kept.
func TestSweep(t *testing.T) {
	clock := newFakeClock()
	l := NewMemoryLimiterWithClock(clock.Now)

	window := 10 * time.Second

	l.Check("api", "idle", window, 5, time.Minute)
	clock.Advance(30 * time.Second)
	l.Check("api", "active", window, 5, time.Minute)

	removed := l.Sweep(window)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, l.Len())
}

// TestConcurrentChecks verifies the limiter counts correctly under
// parallel load: exactly maxRequests pass, the rest are rejected.
func TestConcurrentChecks(t *testing.T) {
	l := NewMemoryLimiter()

	const total = 100
	const max = 25

	var wg sync.WaitGroup
	results := make([]Decision, total)
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := l.Check("burst", "k", time.Minute, max, time.Minute)
			require.NoError(t, err)
			results[i] = d
		}(i)
	}
	wg.Wait()

	okCount := 0
	for _, d := range results {
		if d == Ok {
			okCount++
		}
	}
	assert.Equal(t, max, okCount)
}

// TestDecisionString covers the diagnostic rendering.
func TestDecisionString(t *testing.T) {
	assert.Equal(t, "ok", Ok.String())
	assert.Equal(t, "exceeded", Exceeded.String())
	assert.Equal(t, "ok", fmt.Sprint(Ok))
}
