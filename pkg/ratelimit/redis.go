// edgewall/pkg/ratelimit/redis.go

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"edgewall/pkg/logging"
)

var ctx = context.Background()

// RedisLimiter backs the fixed-window counters and penalty box with
// Redis, for deployments that synchronize limits across edge nodes.
// The counter INCR and penalty SET run in a single pipeline per check.
type RedisLimiter struct {
	client *redis.Client
}

func NewRedisLimiter(addr, password string, db int) (*RedisLimiter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logging.Logger.Info().Str("addr", addr).Int("db", db).Msg("rate limiter connected to Redis")
	return &RedisLimiter{client: client}, nil
}

// NewRedisLimiterFromClient wraps an existing client, for tests.
func NewRedisLimiterFromClient(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client}
}

func (l *RedisLimiter) Check(counterName, key string, window time.Duration, maxRequests uint32, blockTTL time.Duration) (Decision, error) {
	penaltyKey := fmt.Sprintf("pb:%s:%s", counterName, key)
	counterKey := fmt.Sprintf("rl:%s:%s", counterName, key)

	banned, err := l.client.Exists(ctx, penaltyKey).Result()
	if err != nil {
		return Ok, err
	}
	if banned > 0 {
		return Exceeded, nil
	}

	// INCR + first-write EXPIRE give a fixed window keyed by first
	// observation; the window resets when the key expires.
	count, err := l.client.Incr(ctx, counterKey).Result()
	if err != nil {
		return Ok, err
	}
	if count == 1 {
		if err := l.client.Expire(ctx, counterKey, window).Err(); err != nil {
			return Ok, err
		}
	}

	if count > int64(maxRequests) {
		pipe := l.client.Pipeline()
		pipe.Set(ctx, penaltyKey, "1", blockTTL)
		pipe.Del(ctx, counterKey)
		if _, err := pipe.Exec(ctx); err != nil {
			return Ok, err
		}
		return Exceeded, nil
	}
	return Ok, nil
}
