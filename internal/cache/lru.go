// Package cache provides the catalog and rate-limit caches: an in-process
// LRU, Redis, and a two-phase combination of both.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/rimborsami/rimborsami/internal/domain"
)

const defaultLRUSize = 10000

// LRUCache is a thread-safe LRU cache with per-entry TTL. Values and
// rate-limit counters share one bounded list, so idle users' counters are
// evicted like any other entry.
type LRUCache struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*list.Element
	order   *list.List
	now     func() time.Time
}

type lruEntry struct {
	key       string
	value     []byte
	count     int64
	expiresAt time.Time // zero means no expiry
}

func (e *lruEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// NewLRUCache creates an LRU cache holding at most maxSize entries.
func NewLRUCache(maxSize int) *LRUCache {
	if maxSize <= 0 {
		maxSize = defaultLRUSize
	}
	return &LRUCache{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
}

// Get returns the cached value, or nil on a miss or an expired entry.
func (c *LRUCache) Get(ctx context.Context, scope string, key string) ([]byte, error) {
	if scope == "" {
		return nil, ErrScopeRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.lookup(scopedKey(scope, key))
	if e == nil {
		return nil, nil
	}
	return e.value, nil
}

// Set stores value for ttl. A ttl of zero or less keeps the entry until it
// is evicted or deleted.
func (c *LRUCache) Set(ctx context.Context, scope string, key string, value []byte, ttl time.Duration) error {
	if scope == "" {
		return ErrScopeRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.upsert(scopedKey(scope, key))
	e.value = value
	e.expiresAt = c.deadline(ttl)
	return nil
}

// Delete removes a value.
func (c *LRUCache) Delete(ctx context.Context, scope string, key string) error {
	if scope == "" {
		return ErrScopeRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[scopedKey(scope, key)]; ok {
		c.remove(elem)
	}
	return nil
}

// GetCatalog returns the cached active catalog.
func (c *LRUCache) GetCatalog(ctx context.Context) ([]domain.OpportunityDefinition, error) {
	return getCatalog(ctx, c)
}

// SetCatalog caches the active catalog.
func (c *LRUCache) SetCatalog(ctx context.Context, catalog []domain.OpportunityDefinition, ttl time.Duration) error {
	return setCatalog(ctx, c, catalog, ttl)
}

// InvalidateCatalog drops the cached catalog.
func (c *LRUCache) InvalidateCatalog(ctx context.Context) error {
	return invalidateCatalog(ctx, c)
}

// IncrementCounter counts hits in a fixed window that opens on the first
// increment.
func (c *LRUCache) IncrementCounter(ctx context.Context, scope string, key string, window time.Duration) (int64, error) {
	if scope == "" {
		return 0, ErrScopeRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	fullKey := scopedKey(scope, counterPrefix+key)
	if e := c.lookup(fullKey); e != nil {
		e.count++
		return e.count, nil
	}

	e := c.upsert(fullKey)
	e.count = 1
	e.expiresAt = c.deadline(window)
	return 1, nil
}

// Ping always succeeds.
func (c *LRUCache) Ping(ctx context.Context) error {
	return nil
}

// Close drops every entry.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
	return nil
}

// Stats returns the number of entries and the capacity.
func (c *LRUCache) Stats() (size int, capacity int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len(), c.maxSize
}

// lookup returns the live entry for key and marks it most recently used.
// Expired entries are removed. Callers hold mu.
func (c *LRUCache) lookup(key string) *lruEntry {
	elem, ok := c.items[key]
	if !ok {
		return nil
	}
	e := elem.Value.(*lruEntry)
	if e.expired(c.now()) {
		c.remove(elem)
		return nil
	}
	c.order.MoveToFront(elem)
	return e
}

// upsert returns the entry for key, creating it and evicting the least
// recently used entries when over capacity. Callers hold mu.
func (c *LRUCache) upsert(key string) *lruEntry {
	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		e := elem.Value.(*lruEntry)
		e.count = 0
		return e
	}

	e := &lruEntry{key: key}
	c.items[key] = c.order.PushFront(e)
	for c.order.Len() > c.maxSize {
		c.remove(c.order.Back())
	}
	return e
}

func (c *LRUCache) remove(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.items, elem.Value.(*lruEntry).key)
}

func (c *LRUCache) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(ttl)
}

func scopedKey(scope, key string) string {
	return scope + ":" + key
}
