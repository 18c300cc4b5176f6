package cache

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/rimborsami/rimborsami/internal/domain"
)

const defaultLocalTTL = 5 * time.Minute

// New creates the cache selected by cfg.Type. "memory" is a process-local
// LRU; "redis" is Redis alone or, with EnableTwoPhase, an LRU in front of
// Redis.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewLRUCache(cfg.LocalMaxSize), nil

	case "redis":
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(cfg)
		}
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	default:
		return nil, eris.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// TwoPhaseCache reads through a process-local LRU into a shared Redis.
// Local entries live at most localTTL, which bounds how stale a node's
// catalog can be after another node invalidates it.
type TwoPhaseCache struct {
	local    *LRUCache
	shared   *RedisCache
	localTTL time.Duration
}

// NewTwoPhaseCache connects the shared tier and creates the local one.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	shared, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, eris.Wrap(err, "failed to create redis cache")
	}

	localTTL := cfg.LocalTTL
	if localTTL <= 0 {
		localTTL = defaultLocalTTL
	}
	return &TwoPhaseCache{
		local:    NewLRUCache(cfg.LocalMaxSize),
		shared:   shared,
		localTTL: localTTL,
	}, nil
}

// Get returns the local copy when present, else the shared one, which is
// then kept locally.
func (c *TwoPhaseCache) Get(ctx context.Context, scope string, key string) ([]byte, error) {
	val, err := c.local.Get(ctx, scope, key)
	if err != nil || val != nil {
		return val, err
	}

	val, err = c.shared.Get(ctx, scope, key)
	if err != nil || val == nil {
		return nil, err
	}
	_ = c.local.Set(ctx, scope, key, val, c.localTTL)
	return val, nil
}

// Set writes the shared tier, then the local one. Local entries never
// outlive localTTL.
func (c *TwoPhaseCache) Set(ctx context.Context, scope string, key string, value []byte, ttl time.Duration) error {
	if err := c.shared.Set(ctx, scope, key, value, ttl); err != nil {
		return err
	}
	return c.local.Set(ctx, scope, key, value, c.localTTLFor(ttl))
}

// Delete clears the shared tier before the local one, so a concurrent Get
// on this node cannot refill the local tier from a stale shared copy.
func (c *TwoPhaseCache) Delete(ctx context.Context, scope string, key string) error {
	if err := c.shared.Delete(ctx, scope, key); err != nil {
		return err
	}
	return c.local.Delete(ctx, scope, key)
}

// GetCatalog reads the catalog through both tiers.
func (c *TwoPhaseCache) GetCatalog(ctx context.Context) ([]domain.OpportunityDefinition, error) {
	return getCatalog(ctx, c)
}

// SetCatalog caches the catalog in both tiers.
func (c *TwoPhaseCache) SetCatalog(ctx context.Context, catalog []domain.OpportunityDefinition, ttl time.Duration) error {
	return setCatalog(ctx, c, catalog, ttl)
}

// InvalidateCatalog drops this node's catalog and the shared one. Other
// nodes keep theirs for at most localTTL.
func (c *TwoPhaseCache) InvalidateCatalog(ctx context.Context) error {
	return invalidateCatalog(ctx, c)
}

// IncrementCounter always counts in Redis so rate limits hold across nodes.
func (c *TwoPhaseCache) IncrementCounter(ctx context.Context, scope string, key string, window time.Duration) (int64, error) {
	return c.shared.IncrementCounter(ctx, scope, key, window)
}

// Ping checks the shared tier; the local tier cannot fail.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.shared.Ping(ctx); err != nil {
		return eris.Wrap(err, "redis ping failed")
	}
	return nil
}

// Close releases both tiers.
func (c *TwoPhaseCache) Close() error {
	_ = c.local.Close()
	return c.shared.Close()
}

// Stats returns the local tier's size and capacity.
func (c *TwoPhaseCache) Stats() (size int, capacity int) {
	return c.local.Stats()
}

func (c *TwoPhaseCache) localTTLFor(ttl time.Duration) time.Duration {
	if ttl > 0 && ttl < c.localTTL {
		return ttl
	}
	return c.localTTL
}
