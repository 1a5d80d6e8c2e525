package ratelimit

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisLimiter(t *testing.T) (*miniredis.Miniredis, *RedisLimiter) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	return s, NewRedisLimiterFromClient(client)
}

// TestRedisLimiterSequence mirrors the memory limiter's canonical
// sequence against Redis-backed counters.
func TestRedisLimiterSequence(t *testing.T) {
	s, l := setupRedisLimiter(t)

	window := 10 * time.Second
	blockTTL := 1 * time.Second

	for i := 0; i < 5; i++ {
		d, err := l.Check("api", "1.2.3.4", window, 5, blockTTL)
		require.NoError(t, err)
		assert.Equal(t, Ok, d, "request %d should pass", i+1)
	}

	d, err := l.Check("api", "1.2.3.4", window, 5, blockTTL)
	require.NoError(t, err)
	assert.Equal(t, Exceeded, d)

	// The penalty key exists and the counter was cleared.
	assert.True(t, s.Exists("pb:api:1.2.3.4"))
	assert.False(t, s.Exists("rl:api:1.2.3.4"))

	// Inside the penalty window.
	s.FastForward(500 * time.Millisecond)
	d, _ = l.Check("api", "1.2.3.4", window, 5, blockTTL)
	assert.Equal(t, Exceeded, d)

	// Penalty expired; fresh window.
	s.FastForward(1 * time.Second)
	d, _ = l.Check("api", "1.2.3.4", window, 5, blockTTL)
	assert.Equal(t, Ok, d)
}

// TestRedisLimiterWindowExpiry verifies the counter key carries the
// window TTL so the count resets on rollover.
func TestRedisLimiterWindowExpiry(t *testing.T) {
	s, l := setupRedisLimiter(t)

	window := 10 * time.Second

	for i := 0; i < 5; i++ {
		d, _ := l.Check("api", "k", window, 5, time.Minute)
		assert.Equal(t, Ok, d)
	}

	s.FastForward(11 * time.Second)
	for i := 0; i < 5; i++ {
		d, _ := l.Check("api", "k", window, 5, time.Minute)
		assert.Equal(t, Ok, d, "fresh window, request %d", i+1)
	}
}

// TestRedisLimiterKeyIsolation verifies counter/key pairs do not bleed
// into each other.
func TestRedisLimiterKeyIsolation(t *testing.T) {
	_, l := setupRedisLimiter(t)

	window := 10 * time.Second

	l.Check("api", "a", window, 1, time.Minute)
	d, _ := l.Check("api", "a", window, 1, time.Minute)
	require.Equal(t, Exceeded, d)

	d, _ = l.Check("api", "b", window, 1, time.Minute)
	assert.Equal(t, Ok, d)
	d, _ = l.Check("login", "a", window, 1, time.Minute)
	assert.Equal(t, Ok, d)
}

// TestRedisLimiterUnavailable verifies a dead server surfaces an error
// instead of a silent decision.
func TestRedisLimiterUnavailable(t *testing.T) {
	s, l := setupRedisLimiter(t)
	s.Close()

	_, err := l.Check("api", "k", time.Second, 5, time.Second)
	assert.Error(t, err)
}
