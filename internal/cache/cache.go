// Package cache provides a Redis-backed cache-aside layer for task reads.
// Entries are dropped when the store publishes a change.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/todo-manager/internal/events"
	"github.com/BuzzLyutic/todo-manager/internal/model"
)

// Cache stores JSON-encoded values under a key prefix.
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
	stats  Stats
}

type Stats struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Sets    uint64 `json:"sets"`
	Deletes uint64 `json:"deletes"`
	Errors  uint64 `json:"errors"`
}

func New(client *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger,
	}
}

// ListKey identifies the cached result of a filtered listing.
func ListKey(f model.TaskFilter) string {
	status, _ := f.StatusConstraint()
	return "list:" + url.QueryEscape(string(status)) + ":" + url.QueryEscape(f.Query)
}

// TaskKey identifies a cached single task.
func TaskKey(id string) string {
	return "task:" + id
}

// Get decodes the value stored under key into dest. It reports false on a miss.
func (c *Cache) Get(ctx context.Context, key string, dest any) (bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			atomic.AddUint64(&c.stats.Misses, 1)
			return false, nil
		}
		atomic.AddUint64(&c.stats.Errors, 1)
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		atomic.AddUint64(&c.stats.Errors, 1)
		return false, fmt.Errorf("cache decode %s: %w", key, err)
	}

	atomic.AddUint64(&c.stats.Hits, 1)
	return true, nil
}

func (c *Cache) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		atomic.AddUint64(&c.stats.Errors, 1)
		return fmt.Errorf("cache encode %s: %w", key, err)
	}

	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		atomic.AddUint64(&c.stats.Errors, 1)
		return fmt.Errorf("cache set %s: %w", key, err)
	}

	atomic.AddUint64(&c.stats.Sets, 1)
	return nil
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.prefix + k
	}

	n, err := c.client.Del(ctx, full...).Result()
	if err != nil {
		atomic.AddUint64(&c.stats.Errors, 1)
		return fmt.Errorf("cache delete: %w", err)
	}
	atomic.AddUint64(&c.stats.Deletes, uint64(n))
	return nil
}

// DeletePattern removes every key matching the glob pattern under the prefix.
func (c *Cache) DeletePattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.prefix+pattern, 100).Result()
		if err != nil {
			atomic.AddUint64(&c.stats.Errors, 1)
			return fmt.Errorf("cache scan: %w", err)
		}

		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				atomic.AddUint64(&c.stats.Errors, 1)
				return fmt.Errorf("cache delete: %w", err)
			}
			atomic.AddUint64(&c.stats.Deletes, uint64(n))
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Invalidate drops every listing and the changed task. It is an events.Handler.
func (c *Cache) Invalidate(ctx context.Context, ch events.Change) {
	if err := c.DeletePattern(ctx, "list:*"); err != nil {
		c.logger.Warn("failed to invalidate task lists", zap.String("event", string(ch.Type)), zap.Error(err))
	}
	if err := c.Delete(ctx, TaskKey(ch.TaskID)); err != nil {
		c.logger.Warn("failed to invalidate task", zap.String("task_id", ch.TaskID), zap.Error(err))
	}
}

func (c *Cache) Stats() Stats {
	return Stats{
		Hits:    atomic.LoadUint64(&c.stats.Hits),
		Misses:  atomic.LoadUint64(&c.stats.Misses),
		Sets:    atomic.LoadUint64(&c.stats.Sets),
		Deletes: atomic.LoadUint64(&c.stats.Deletes),
		Errors:  atomic.LoadUint64(&c.stats.Errors),
	}
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	return c.client.Close()
}
