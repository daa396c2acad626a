// Package cache provides an optional Redis-backed read-through cache for
// the HTTP/WS Surface's hot inspect/list paths.
//
// Caching is opt-in (NANOCL_CACHE_ENABLED). When disabled, every method
// is a no-op (Get always misses, Set/Delete/DeletePattern return nil).
// When enabled, New returns an error if Redis does not answer its startup
// ping; after startup the HTTP helpers treat any cache error as a miss or
// ignore it, so a cache outage never turns into a request failure.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache wraps a Redis client. A nil client means caching is disabled.
type Cache struct {
	client *redis.Client
}

// Config configures the Redis connection.
type Config struct {
	Addr     string
	Password string
	DB       int
	Enabled  bool
}

// New builds a Cache. When config.Enabled is false it returns a disabled
// Cache immediately without dialing Redis.
func New(config Config) (*Cache, error) {
	if !config.Enabled {
		return &Cache{client: nil}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:            config.Addr,
		Password:        config.Password,
		DB:              config.DB,
		PoolSize:        25,
		MinIdleConns:    5,
		MaxIdleConns:    10,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: redis ping failed: %w", err)
	}

	return &Cache{client: client}, nil
}

// IsEnabled reports whether the cache is backed by a live Redis client.
func (c *Cache) IsEnabled() bool {
	return c != nil && c.client != nil
}

// Close releases the underlying Redis connection pool, if any.
func (c *Cache) Close() error {
	if !c.IsEnabled() {
		return nil
	}
	return c.client.Close()
}

// Get looks up key and JSON-decodes it into target. Returns an error
// (including when caching is disabled or the key is missing) so callers
// can treat any error as a cache miss and fall through to the store.
func (c *Cache) Get(ctx context.Context, key string, target interface{}) error {
	if !c.IsEnabled() {
		return fmt.Errorf("cache: disabled")
	}

	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return fmt.Errorf("cache: key not found: %s", key)
	}
	if err != nil {
		return fmt.Errorf("cache: get %s: %w", key, err)
	}

	if err := json.Unmarshal([]byte(val), target); err != nil {
		return fmt.Errorf("cache: unmarshal %s: %w", key, err)
	}
	return nil
}

// Set JSON-encodes value and stores it under key with the given TTL.
// A no-op when caching is disabled.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.IsEnabled() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: marshal %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	return nil
}

// Delete removes one or more keys. A no-op when caching is disabled.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if !c.IsEnabled() || len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache: delete: %w", err)
	}
	return nil
}

// DeletePattern deletes every key matching a glob pattern (e.g.
// "cargo:inspect:myns.*"), used to invalidate a namespace's inspect
// entries on any write. A no-op when caching is disabled.
func (c *Cache) DeletePattern(ctx context.Context, pattern string) error {
	if !c.IsEnabled() {
		return nil
	}

	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache: scan %s: %w", pattern, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache: delete pattern %s: %w", pattern, err)
	}
	return nil
}
