package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/stuKim0221/smart-lotto/pkg/common"
)

// RedisCache 基于 Redis 的共享缓存, used when several instances serve evaluations.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger common.Logger
}

// NewRedisCache 连接 Redis
func NewRedisCache(ctx context.Context, redisURL string, ttl time.Duration, logger common.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return NewRedisCacheWithClient(client, ttl, logger), nil
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration, logger common.Logger) *RedisCache {
	return &RedisCache{client: client, prefix: "lotto:", ttl: ttl, logger: logger}
}

// Get 获取缓存. Redis errors are logged and reported as a miss.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("Redis get %s failed: %v", key, err)
		return nil, false
	}
	return data, true
}

// Set 设置缓存
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		c.logger.Warn("Redis set %s failed: %v", key, err)
	}
}

// Ping reports whether Redis is reachable.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
