// Package cache is the Redis tier: country hot cache, negative lookups and
// token bucket rate limits.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultNamespace prefixes every key this package writes.
const DefaultNamespace = "atlasgate:"

// ErrCacheMiss is returned when a key is absent from the cache.
var ErrCacheMiss = errors.New("cache miss")

// Cache wraps a Redis client. All keys live under one namespace so several
// deployments can share a Redis database.
type Cache struct {
	client    *redis.Client
	namespace string
}

type options struct {
	namespace string
	poolSize  int
	minIdle   int
}

// Option customises a Cache.
type Option func(*options)

// WithNamespace sets the key prefix. An empty namespace writes bare keys.
func WithNamespace(ns string) Option {
	return func(o *options) { o.namespace = ns }
}

// WithPoolSize bounds the connection pool. Only used by New.
func WithPoolSize(size, minIdle int) Option {
	return func(o *options) {
		if size > 0 {
			o.poolSize = size
		}
		if minIdle >= 0 {
			o.minIdle = minIdle
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{namespace: DefaultNamespace, poolSize: 10, minIdle: 2}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New parses redisURL, connects and pings.
func New(ctx context.Context, redisURL string, opts ...Option) (*Cache, error) {
	o := buildOptions(opts)

	ro, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	ro.PoolSize = o.poolSize
	ro.MinIdleConns = o.minIdle
	ro.PoolTimeout = 4 * time.Second
	ro.ConnMaxIdleTime = 5 * time.Minute

	client := redis.NewClient(ro)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Cache{client: client, namespace: o.namespace}, nil
}

// NewWithClient wraps an existing client. Pool options are ignored; Close
// still closes the client.
func NewWithClient(client *redis.Client, opts ...Option) *Cache {
	return &Cache{client: client, namespace: buildOptions(opts).namespace}
}

// key namespaces a relative key.
func (c *Cache) key(rel string) string {
	return c.namespace + rel
}

// Ping checks Redis connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Client returns the underlying Redis client.
func (c *Cache) Client() *redis.Client {
	return c.client
}
