package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultCacheTTL is how long network answers are kept.
const DefaultCacheTTL = 7 * 24 * time.Hour

// MemoryCache is an in-process Cache with per-entry expiry.
type MemoryCache struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	place     Place
	expiresAt time.Time
}

var _ Cache = (*MemoryCache)(nil)

// NewMemoryCache creates a new in-memory cache. A zero ttl uses DefaultCacheTTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl == 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
	}
}

// Get returns a cached place.
func (c *MemoryCache) Get(_ context.Context, key string) (*Place, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if time.Now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false, nil
	}
	place := e.place
	return &place, true, nil
}

// Set stores a place.
func (c *MemoryCache) Set(_ context.Context, key string, place Place) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{place: place, expiresAt: time.Now().Add(c.ttl)}
	return nil
}

// Len returns the number of stored entries, including expired ones not yet evicted.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// RedisConfig holds connection settings for NewRedisClient.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects to Redis and verifies the connection with PING.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

// RedisCache is a Cache backed by Redis, shared across instances.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger zerolog.Logger
}

var _ Cache = (*RedisCache)(nil)

// NewRedisCache creates a Redis-backed cache. A zero ttl uses DefaultCacheTTL.
func NewRedisCache(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *RedisCache {
	if ttl == 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{
		client: client,
		prefix: "hershield:geocode:",
		ttl:    ttl,
		logger: logger.With().Str("component", "geocode_cache").Logger(),
	}
}

func (c *RedisCache) key(k string) string {
	return c.prefix + k
}

// Get returns a cached place. A missing key is not an error.
func (c *RedisCache) Get(ctx context.Context, key string) (*Place, bool, error) {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.logger.Debug().Str("key", key).Msg("cache miss")
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var place Place
	if err := json.Unmarshal(data, &place); err != nil {
		return nil, false, fmt.Errorf("json unmarshal: %w", err)
	}
	c.logger.Debug().Str("key", key).Int("size_bytes", len(data)).Msg("cache hit")
	return &place, true, nil
}

// Set stores a place with the cache TTL.
func (c *RedisCache) Set(ctx context.Context, key string, place Place) error {
	data, err := json.Marshal(place)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	if err := c.client.Set(ctx, c.key(key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
