package retrieval

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache memoizes per-query search hits. Implementations treat backend
// errors as misses.
type Cache interface {
	Get(ctx context.Context, key string) ([]Hit, bool)
	Set(ctx context.Context, key string, hits []Hit)
}

// CacheConfig selects and configures the retrieval cache.
type CacheConfig struct {
	// Backend is none (default), memory or redis.
	Backend    string        `koanf:"backend"`
	TTL        time.Duration `koanf:"ttl"`
	MaxEntries int           `koanf:"max_entries"`
	Redis      RedisConfig   `koanf:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Prefix   string `koanf:"prefix"`
}

// ApplyDefaults sets default values for unset fields.
func (c *CacheConfig) ApplyDefaults() {
	if c.Backend == "" {
		c.Backend = "none"
	}
	if c.TTL == 0 {
		c.TTL = 10 * time.Minute
	}
	if c.MaxEntries == 0 {
		c.MaxEntries = 1000
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "lexflow:retrieval:"
	}
}

// Validate validates the configuration.
func (c CacheConfig) Validate() error {
	switch c.Backend {
	case "none", "memory", "redis":
	default:
		return fmt.Errorf("%w: unknown cache backend %q", ErrInvalidRequest, c.Backend)
	}
	if c.TTL < 0 || c.MaxEntries < 0 {
		return fmt.Errorf("%w: cache ttl and max_entries must not be negative", ErrInvalidRequest)
	}
	return nil
}

// NewCache builds the configured cache. It returns nil for backend none.
func NewCache(ctx context.Context, cfg CacheConfig, logger *zap.Logger) (Cache, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case "memory":
		return NewMemoryCache(cfg.TTL, cfg.MaxEntries), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connecting to redis %s: %w", cfg.Redis.Addr, err)
		}
		return NewRedisCache(client, cfg.Redis.Prefix, cfg.TTL, logger), nil
	default:
		return nil, nil
	}
}

type memoryEntry struct {
	key       string
	hits      []Hit
	expiresAt time.Time
}

// MemoryCache is an in-process LRU cache with a TTL.
type MemoryCache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	order      *list.List // front = most recently used
	entries    map[string]*list.Element
	now        func() time.Time
}

// NewMemoryCache creates a MemoryCache.
func NewMemoryCache(ttl time.Duration, maxEntries int) *MemoryCache {
	return &MemoryCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		order:      list.New(),
		entries:    make(map[string]*list.Element),
		now:        time.Now,
	}
}

// Get returns cached hits for key if present and not expired.
func (c *MemoryCache) Get(_ context.Context, key string) ([]Hit, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*memoryEntry)
	if c.now().After(entry.expiresAt) {
		c.order.Remove(el)
		delete(c.entries, key)
		return nil, false
	}
	c.order.MoveToFront(el)
	return append([]Hit(nil), entry.hits...), true
}

// Set stores hits under key, evicting the least recently used entry when full.
func (c *MemoryCache) Set(_ context.Context, key string, hits []Hit) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &memoryEntry{
		key:       key,
		hits:      append([]Hit(nil), hits...),
		expiresAt: c.now().Add(c.ttl),
	}
	if el, ok := c.entries[key]; ok {
		el.Value = entry
		c.order.MoveToFront(el)
		return
	}
	if c.maxEntries > 0 && c.order.Len() >= c.maxEntries {
		if oldest := c.order.Back(); oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*memoryEntry).key)
		}
	}
	c.entries[key] = c.order.PushFront(entry)
}

// Len returns the number of cached entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// RedisCache stores JSON-encoded hits in Redis with a TTL.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

func (c *RedisCache) redisKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return c.prefix + hex.EncodeToString(sum[:])
}

// Get returns cached hits; redis errors count as misses.
func (c *RedisCache) Get(ctx context.Context, key string) ([]Hit, bool) {
	data, err := c.client.Get(ctx, c.redisKey(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("redis cache get failed", zap.Error(err))
		}
		return nil, false
	}
	var hits []Hit
	if err := json.Unmarshal(data, &hits); err != nil {
		c.logger.Warn("discarding malformed cache entry", zap.Error(err))
		return nil, false
	}
	return hits, true
}

// Set stores hits; failures are logged and ignored.
func (c *RedisCache) Set(ctx context.Context, key string, hits []Hit) {
	data, err := json.Marshal(hits)
	if err != nil {
		c.logger.Warn("encoding cache entry", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, c.redisKey(key), data, c.ttl).Err(); err != nil {
		c.logger.Warn("redis cache set failed", zap.Error(err))
	}
}

// Close closes the Redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
