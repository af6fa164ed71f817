package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "pr_chc:stats:"

// Cache stores rendered reports per date window.
type Cache interface {
	Get(ctx context.Context, key string) (*Report, bool, error)
	Set(ctx context.Context, key string, report *Report) error
}

// CacheKey builds the cache key for a start/end pair as received.
func CacheKey(startDate, endDate string) string {
	return keyPrefix + startDate + ":" + endDate
}

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*Report, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return &r, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, report *Report) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// NoopCache never hits.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) (*Report, bool, error) { return nil, false, nil }
func (NoopCache) Set(context.Context, string, *Report) error         { return nil }
