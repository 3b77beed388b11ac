package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueryCache keeps entries as plain Redis strings with an expiry.
type RedisQueryCache struct {
	client redis.UniversalClient
}

// NewRedisQueryCache constructs a cache on top of an existing client.
func NewRedisQueryCache(client redis.UniversalClient) *RedisQueryCache {
	return &RedisQueryCache{client: client}
}

func (c *RedisQueryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache %s: %w", key, err)
	}
	return payload, true, nil
}

func (c *RedisQueryCache) Put(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if err := c.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("write cache %s: %w", key, err)
	}
	return nil
}

func (c *RedisQueryCache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidate cache: %w", err)
	}
	return nil
}
