// edgewall/pkg/lists/redis.go

package lists

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"edgewall/pkg/logging"
)

var ctx = context.Background()

// RedisProvider resolves list membership against Redis sets, keyed
// "list:<type>" or "list:<type>:<name>". Lists are maintained by an
// external feed process; the engine only reads.
type RedisProvider struct {
	client *redis.Client
}

func NewRedisProvider(addr, password string, db int) (*RedisProvider, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logging.Logger.Info().Str("addr", addr).Msg("list provider connected to Redis")
	return &RedisProvider{client: client}, nil
}

// NewRedisProviderFromClient wraps an existing client, for tests.
func NewRedisProviderFromClient(client *redis.Client) *RedisProvider {
	return &RedisProvider{client: client}
}

func (p *RedisProvider) Lookup(listType, listName, value string) (bool, error) {
	key := "list:" + listType
	if listName != "" {
		key += ":" + listName
	}
	found, err := p.client.SIsMember(ctx, key, value).Result()
	if err != nil {
		logging.Logger.Error().Err(err).Str("key", key).Msg("list lookup failed")
		return false, err
	}
	return found, nil
}
