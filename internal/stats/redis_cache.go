package stats

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"

	"flight-fare-monitor/internal/domain"
)

// RedisCache stores snapshots in Redis so multiple monitor instances share
// recomputed statistics.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache wraps an existing redis client.
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "farewatcher:"
	}
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) key(route string) string {
	return c.prefix + "stats:" + route
}

// Get returns a cached snapshot if present.
func (c *RedisCache) Get(ctx context.Context, route string) (domain.RouteStatistics, bool) {
	data, err := c.client.Get(ctx, c.key(route)).Result()
	if err != nil {
		return domain.RouteStatistics{}, false
	}

	var snapshot domain.RouteStatistics
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		return domain.RouteStatistics{}, false
	}
	return snapshot, true
}

// Set stores a snapshot with the given TTL.
func (c *RedisCache) Set(ctx context.Context, route string, snapshot domain.RouteStatistics, ttl time.Duration) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(route), data, ttl).Err()
}

// Invalidate removes the route's cached snapshot.
func (c *RedisCache) Invalidate(ctx context.Context, route string) error {
	err := c.client.Del(ctx, c.key(route)).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

var _ Cache = (*RedisCache)(nil)
