package eventconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"civreg/internal/event/models"
	"civreg/pkg/requestcontext"
)

// DefaultCacheTTL bounds staleness of fetched event configurations.
const DefaultCacheTTL = 5 * time.Minute

// Cache wraps a Provider with a TTL cache. It is an explicitly owned,
// injected object: callers construct it once in main and pass it where
// needed. When a Redis client is supplied, entries are shared across
// instances; the in-process map is always kept as a fallback so a Redis
// outage degrades to per-instance caching instead of failing reads.
type Cache struct {
	source Provider
	ttl    time.Duration
	redis  *redis.Client
	logger *slog.Logger

	mu    sync.RWMutex
	local map[models.EventType]cacheEntry
}

type cacheEntry struct {
	config    *Config
	expiresAt time.Time
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithRedis shares cached configuration across instances via Redis.
func WithRedis(client *redis.Client) CacheOption {
	return func(c *Cache) { c.redis = client }
}

// WithTTL overrides the default cache TTL.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithLogger sets the logger for cache misses and Redis degradation.
func WithLogger(logger *slog.Logger) CacheOption {
	return func(c *Cache) { c.logger = logger }
}

// NewCache wraps source with a TTL cache.
func NewCache(source Provider, opts ...CacheOption) *Cache {
	c := &Cache{
		source: source,
		ttl:    DefaultCacheTTL,
		logger: slog.Default(),
		local:  make(map[models.EventType]cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) Get(ctx context.Context, eventType models.EventType) (*Config, error) {
	now := requestcontext.Now(ctx)

	c.mu.RLock()
	entry, ok := c.local[eventType]
	c.mu.RUnlock()
	if ok && now.Before(entry.expiresAt) {
		return entry.config, nil
	}

	if cfg := c.fromRedis(ctx, eventType); cfg != nil {
		c.storeLocal(eventType, cfg, now)
		return cfg, nil
	}

	cfg, err := c.source.Get(ctx, eventType)
	if err != nil {
		return nil, err
	}

	c.storeLocal(eventType, cfg, now)
	c.toRedis(ctx, eventType, cfg)
	return cfg, nil
}

func (c *Cache) storeLocal(eventType models.EventType, cfg *Config, now time.Time) {
	c.mu.Lock()
	c.local[eventType] = cacheEntry{config: cfg, expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()
}

// Invalidate drops the cached entry for an event type from both tiers.
func (c *Cache) Invalidate(ctx context.Context, eventType models.EventType) {
	c.mu.Lock()
	delete(c.local, eventType)
	c.mu.Unlock()
	if c.redis != nil {
		if err := c.redis.Del(ctx, redisKey(eventType)).Err(); err != nil {
			c.logger.WarnContext(ctx, "failed to invalidate config in redis",
				"event_type", eventType, "error", err)
		}
	}
}

func (c *Cache) fromRedis(ctx context.Context, eventType models.EventType) *Config {
	if c.redis == nil {
		return nil
	}
	raw, err := c.redis.Get(ctx, redisKey(eventType)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WarnContext(ctx, "config cache read degraded to source",
				"event_type", eventType, "error", err)
		}
		return nil
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		c.logger.WarnContext(ctx, "discarding malformed cached config",
			"event_type", eventType, "error", err)
		return nil
	}
	return &cfg
}

func (c *Cache) toRedis(ctx context.Context, eventType models.EventType, cfg *Config) {
	if c.redis == nil {
		return
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, redisKey(eventType), raw, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "failed to write config to redis cache",
			"event_type", eventType, "error", err)
	}
}

func redisKey(eventType models.EventType) string {
	return fmt.Sprintf("civreg:config:%s", eventType)
}
