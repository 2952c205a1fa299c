package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "totp:used:"

// RedisCache shares used-step state between replicas via SET NX.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) MarkUsed(ctx context.Context, key string, ttl time.Duration) error {
	ok, err := c.client.SetNX(ctx, redisKeyPrefix+key, 1, ttl).Result()
	if err != nil {
		return fmt.Errorf("replay: redis setnx: %w", err)
	}
	if !ok {
		return ErrReplayed
	}
	return nil
}

// Ping verifies the redis connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
