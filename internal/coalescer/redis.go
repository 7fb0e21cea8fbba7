package coalescer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces cached values in Redis.
const DefaultKeyPrefix = "timeline:coalescer:"

// RedisCache stores JSON-encoded values in Redis so replicas share results.
type RedisCache[V any] struct {
	client *redis.Client
	prefix string
}

// NewRedisCache creates a RedisCache. An empty prefix uses DefaultKeyPrefix.
func NewRedisCache[V any](client *redis.Client, prefix string) *RedisCache[V] {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisCache[V]{client: client, prefix: prefix}
}

// Get implements Cache.
func (r *RedisCache[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var v V
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return v, false, nil
	}
	if err != nil {
		return v, false, fmt.Errorf("failed to get cached value: %w", err)
	}
	if err = json.Unmarshal(data, &v); err != nil {
		return v, false, fmt.Errorf("failed to decode cached value: %w", err)
	}
	return v, true, nil
}

// Set implements Cache. A non-positive ttl stores nothing.
func (r *RedisCache[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode value: %w", err)
	}
	if err = r.client.Set(ctx, r.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache value: %w", err)
	}
	return nil
}

// Delete implements Cache.
func (r *RedisCache[V]) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete cached value: %w", err)
	}
	return nil
}
