package statestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisCommander interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// RedisStoreConfig configures the Redis-backed state store.
type RedisStoreConfig struct {
	Namespace string
}

// RedisStore keeps the state document under a single Redis key so multiple
// replicas can share one game state.
type RedisStore struct {
	client    redisCommander
	closeFn   func() error
	namespace string
}

// NewRedisStore creates a Redis-backed state store.
func NewRedisStore(client redis.UniversalClient, cfg RedisStoreConfig) *RedisStore {
	closeFn := func() error { return nil }
	if client != nil {
		closeFn = client.Close
	}
	return newRedisStoreFromCommander(client, closeFn, cfg)
}

func newRedisStoreFromCommander(client redisCommander, closeFn func() error, cfg RedisStoreConfig) *RedisStore {
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "pixelpet"
	}
	if closeFn == nil {
		closeFn = func() error { return nil }
	}
	return &RedisStore{
		client:    client,
		closeFn:   closeFn,
		namespace: namespace,
	}
}

func (s *RedisStore) stateKey() string {
	return s.namespace + ":state"
}

// Load reads the state document from Redis.
func (s *RedisStore) Load(ctx context.Context) ([]byte, bool, error) {
	if s == nil || s.client == nil {
		return nil, false, fmt.Errorf("redis store is not initialized")
	}
	doc, err := s.client.Get(ctx, s.stateKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read state key: %w", err)
	}
	return doc, true, nil
}

// Save replaces the state document in Redis.
func (s *RedisStore) Save(ctx context.Context, doc []byte) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("redis store is not initialized")
	}
	if doc == nil {
		return fmt.Errorf("state document is required")
	}
	if err := s.client.Set(ctx, s.stateKey(), doc, 0).Err(); err != nil {
		return fmt.Errorf("write state key: %w", err)
	}
	return nil
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	if s == nil || s.closeFn == nil {
		return nil
	}
	return s.closeFn()
}
