// edgewall/pkg/store/redis_store.go

package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"edgewall/pkg/logging"
)

var ctx = context.Background()

// RedisSource reads the packed rule payload from a key in Redis and
// listens on a pub/sub channel for deploy notifications.
type RedisSource struct {
	client  *redis.Client
	key     string
	channel string
	pubsub  *redis.PubSub
	updates chan struct{}
}

// NewRedisSource connects and subscribes. key is the config-store entry
// holding the packed payload (conventionally "rules_packed"); channel
// is the pub/sub channel the deployer publishes to on every update.
func NewRedisSource(addr, password string, db int, key, channel string) (*RedisSource, error) {
	logging.Logger.Info().Str("addr", addr).Str("key", key).Msg("connecting rule source to Redis")

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	s := &RedisSource{
		client:  client,
		key:     key,
		channel: channel,
		updates: make(chan struct{}, 1),
	}

	s.pubsub = client.Subscribe(ctx, channel)
	if _, err := s.pubsub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("failed to subscribe to %q: %w", channel, err)
	}
	go s.relay()

	logging.Logger.Info().Str("channel", channel).Msg("subscribed to rule updates")
	return s, nil
}

// NewRedisSourceFromClient wraps an existing client, for tests.
func NewRedisSourceFromClient(client *redis.Client, key, channel string) *RedisSource {
	s := &RedisSource{
		client:  client,
		key:     key,
		channel: channel,
		updates: make(chan struct{}, 1),
	}
	s.pubsub = client.Subscribe(ctx, channel)
	go s.relay()
	return s
}

func (s *RedisSource) relay() {
	defer close(s.updates)
	for msg := range s.pubsub.Channel() {
		logging.Logger.Info().Str("channel", msg.Channel).Msg("rule update notification received")
		select {
		case s.updates <- struct{}{}:
		default: // a reload is already pending
		}
	}
}

func (s *RedisSource) Fetch() ([]byte, error) {
	data, err := s.client.Get(ctx, s.key).Result()
	if err == redis.Nil {
		return nil, logging.NewError(logging.ErrorTypeStore,
			fmt.Sprintf("rule payload key %q not found", s.key), err, nil)
	} else if err != nil {
		return nil, logging.NewError(logging.ErrorTypeStore, "failed to fetch rule payload", err, nil)
	}
	return []byte(data), nil
}

func (s *RedisSource) Updates() <-chan struct{} {
	return s.updates
}

func (s *RedisSource) Close() error {
	if err := s.pubsub.Close(); err != nil {
		return err
	}
	return s.client.Close()
}
