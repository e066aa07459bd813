package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/derickschaefer/atlas/internal/source"
)

const redisKeyPrefix = "atlas:dataset:"

// RedisCache is a shared snapshot cache with a TTL. Several machines
// pointing at the same Redis reuse each other's fetches.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ source.Cache = (*RedisCache)(nil)

// NewRedisCache connects to rawURL (redis://…) and pings it.
func NewRedisCache(ctx context.Context, rawURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	c := NewRedisCacheClient(redis.NewClient(opts), ttl)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.client.Ping(pingCtx).Err(); err != nil {
		c.client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return c, nil
}

// NewRedisCacheClient wraps an existing client. ttl <= 0 keeps entries
// until evicted.
func NewRedisCacheClient(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// Close closes the underlying client.
func (c *RedisCache) Close() error { return c.client.Close() }

// Get implements source.Cache.
func (c *RedisCache) Get(ctx context.Context, ref string) (source.Entry, bool, error) {
	b, err := c.client.Get(ctx, redisKeyPrefix+ref).Bytes()
	if errors.Is(err, redis.Nil) {
		return source.Entry{}, false, nil
	}
	if err != nil {
		return source.Entry{}, false, fmt.Errorf("redis get %s: %w", ref, err)
	}
	var env storedDataset
	if err := json.Unmarshal(b, &env); err != nil {
		return source.Entry{}, false, fmt.Errorf("decoding cached %s: %w", ref, err)
	}
	return source.Entry(env), true, nil
}

// Put implements source.Cache.
func (c *RedisCache) Put(ctx context.Context, e source.Entry) error {
	b, err := json.Marshal(storedDataset(e))
	if err != nil {
		return fmt.Errorf("encoding dataset: %w", err)
	}
	ttl := c.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := c.client.Set(ctx, redisKeyPrefix+e.Ref, b, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", e.Ref, err)
	}
	return nil
}

// Clear deletes every atlas entry from Redis and returns how many were
// removed.
func (c *RedisCache) Clear(ctx context.Context) (int, error) {
	var n int
	iter := c.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return n, err
		}
		n++
	}
	return n, iter.Err()
}
