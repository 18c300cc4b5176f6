package domain

import (
	"context"
	"time"
)

// Cache holds the active catalog and rate-limit counters. Keys are
// namespaced by scope: a user id, or CatalogScope for global data.
type Cache interface {
	// Get returns nil, nil on a miss.
	Get(ctx context.Context, scope string, key string) ([]byte, error)

	// Set stores value; a ttl of zero or less means no expiry.
	Set(ctx context.Context, scope string, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, scope string, key string) error

	// GetCatalog returns the cached active catalog, or nil on a miss.
	GetCatalog(ctx context.Context) ([]OpportunityDefinition, error)

	// SetCatalog caches the active catalog.
	SetCatalog(ctx context.Context, catalog []OpportunityDefinition, ttl time.Duration) error

	// InvalidateCatalog drops the cached catalog after a catalog write.
	InvalidateCatalog(ctx context.Context) error

	// IncrementCounter adds one to a fixed-window counter and returns the
	// new count. The window opens on the first increment.
	IncrementCounter(ctx context.Context, scope string, key string, window time.Duration) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// CatalogScope is the cache scope of global catalog data.
const CatalogScope = "catalog"

// CacheConfig selects and sizes the cache.
type CacheConfig struct {
	Type string `mapstructure:"type"` // "memory" or "redis"

	LocalMaxSize int           `mapstructure:"local_max_size"`
	LocalTTL     time.Duration `mapstructure:"local_ttl"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	// EnableTwoPhase puts a local LRU in front of Redis.
	EnableTwoPhase bool `mapstructure:"enable_two_phase"`

	// CatalogTTL bounds how long the active catalog is served from cache.
	CatalogTTL time.Duration `mapstructure:"catalog_ttl"`
}
