// Package redis implements sqlfn.Cache as the shared L2 tier behind a
// process-local L1, backed by a real Redis connection.
package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// client is the subset of *redis.Client operations this tier needs,
// narrowed to keep the package testable without a live Redis server.
type client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Cache is a Redis-backed sqlfn.Cache. Keys are namespaced as
// "<prefix><namespace>:<key>" so multiple Function cache_as namespaces
// coexist under one Redis keyspace without collision.
type Cache struct {
	client client
	prefix string
}

// Options configures a Cache.
type Options struct {
	// Redis is the Redis connection to use. Required.
	Redis *redis.Client
	// KeyPrefix is prepended to every Redis key. Defaults to "sqlfn:".
	KeyPrefix string
}

// New builds a Cache backed by opts.Redis. Returns an error if opts.Redis
// is nil.
func New(opts Options) (*Cache, error) {
	if opts.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = "sqlfn:"
	}
	return &Cache{client: opts.Redis, prefix: prefix}, nil
}

// Get implements sqlfn.Cache.
func (c *Cache) Get(ctx context.Context, namespace, key string) (string, bool, error) {
	v, err := c.client.Get(ctx, c.redisKey(namespace, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Set implements sqlfn.Cache.
func (c *Cache) Set(ctx context.Context, namespace, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, c.redisKey(namespace, key), value, ttl).Err()
}

func (c *Cache) redisKey(namespace, key string) string {
	return c.prefix + namespace + ":" + key
}
