package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounter is a Counter shared across processes through Redis.
type RedisCounter struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisCounter creates a Counter on top of an existing Redis client.
// prefix namespaces the keys; "ratelimit" when empty.
func NewRedisCounter(client redis.UniversalClient, prefix string) *RedisCounter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisCounter{client: client, prefix: prefix}
}

// Hit ...
func (c *RedisCounter) Hit(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	redisKey := c.prefix + ":" + key

	count, err := c.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", redisKey, err)
	}
	if count == 1 {
		if err := c.client.Expire(ctx, redisKey, ttl).Err(); err != nil {
			return 0, fmt.Errorf("expire %s: %w", redisKey, err)
		}
	}
	return count, nil
}

// Reset ...
func (c *RedisCounter) Reset(ctx context.Context, key string) error {
	redisKey := c.prefix + ":" + key
	if err := c.client.Del(ctx, redisKey).Err(); err != nil {
		return fmt.Errorf("del %s: %w", redisKey, err)
	}
	return nil
}
