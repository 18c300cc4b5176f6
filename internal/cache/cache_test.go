package cache

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rimborsami/rimborsami/internal/domain"
)

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()
	scope := "user-001"

	t.Run("SetAndGet", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, scope, "key1", []byte("value1"), time.Minute))

		val, err := cache.Get(ctx, scope, "key1")
		require.NoError(t, err)
		assert.Equal(t, "value1", string(val))
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, scope, "nonexistent")
		require.NoError(t, err)
		assert.Nil(t, val)
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, scope, "key2", []byte("value2"), time.Minute)
		require.NoError(t, cache.Delete(ctx, scope, "key2"))

		val, _ := cache.Get(ctx, scope, "key2")
		assert.Nil(t, val)
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		c, clock := newClockedLRU(10)
		_ = c.Set(ctx, scope, "expiring", []byte("temp"), time.Second)

		val, _ := c.Get(ctx, scope, "expiring")
		assert.NotNil(t, val)

		clock.advance(2 * time.Second)

		val, _ = c.Get(ctx, scope, "expiring")
		assert.Nil(t, val)
		size, _ := c.Stats()
		assert.Zero(t, size, "expired entry should be removed on read")
	})

	t.Run("NoTTLNeverExpires", func(t *testing.T) {
		c, clock := newClockedLRU(10)
		_ = c.Set(ctx, scope, "forever", []byte("v"), 0)

		clock.advance(24 * time.Hour)

		val, _ := c.Get(ctx, scope, "forever")
		assert.Equal(t, "v", string(val))
	})

	t.Run("LRUEviction", func(t *testing.T) {
		small := NewLRUCache(3)

		_ = small.Set(ctx, scope, "a", []byte("1"), time.Minute)
		_ = small.Set(ctx, scope, "b", []byte("2"), time.Minute)
		_ = small.Set(ctx, scope, "c", []byte("3"), time.Minute)

		// Touch 'a' so 'b' becomes the oldest.
		_, _ = small.Get(ctx, scope, "a")
		_ = small.Set(ctx, scope, "d", []byte("4"), time.Minute)

		val, _ := small.Get(ctx, scope, "b")
		assert.Nil(t, val, "expected 'b' to be evicted")

		val, _ = small.Get(ctx, scope, "a")
		assert.NotNil(t, val)
	})

	t.Run("ScopeIsolation", func(t *testing.T) {
		_ = cache.Set(ctx, "user-001", "shared-key", []byte("one"), time.Minute)
		_ = cache.Set(ctx, "user-002", "shared-key", []byte("two"), time.Minute)

		val1, _ := cache.Get(ctx, "user-001", "shared-key")
		val2, _ := cache.Get(ctx, "user-002", "shared-key")
		assert.Equal(t, "one", string(val1))
		assert.Equal(t, "two", string(val2))
	})

	t.Run("RequiresScope", func(t *testing.T) {
		assert.ErrorIs(t, cache.Set(ctx, "", "key", []byte("value"), time.Minute), ErrScopeRequired)

		_, err := cache.Get(ctx, "", "key")
		assert.ErrorIs(t, err, ErrScopeRequired)

		_, err = cache.IncrementCounter(ctx, "", "key", time.Second)
		assert.ErrorIs(t, err, ErrScopeRequired)
	})

	t.Run("IncrementCounter", func(t *testing.T) {
		c, clock := newClockedLRU(10)
		window := time.Minute

		count, err := c.IncrementCounter(ctx, scope, "requests", window)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		clock.advance(30 * time.Second)
		count, _ = c.IncrementCounter(ctx, scope, "requests", window)
		assert.Equal(t, int64(2), count, "window must not slide on later hits")

		clock.advance(31 * time.Second)
		count, _ = c.IncrementCounter(ctx, scope, "requests", window)
		assert.Equal(t, int64(1), count, "window should reset")
	})

	t.Run("CountersAreBounded", func(t *testing.T) {
		c := NewLRUCache(2)
		for _, user := range []string{"u1", "u2", "u3"} {
			_, err := c.IncrementCounter(ctx, user, "ratelimit", time.Hour)
			require.NoError(t, err)
		}

		size, _ := c.Stats()
		assert.Equal(t, 2, size)

		count, _ := c.IncrementCounter(ctx, "u1", "ratelimit", time.Hour)
		assert.Equal(t, int64(1), count, "oldest counter should have been evicted")
	})

	t.Run("CounterAndValueDoNotCollide", func(t *testing.T) {
		c := NewLRUCache(10)
		_ = c.Set(ctx, scope, "hits", []byte("cached"), time.Minute)
		count, _ := c.IncrementCounter(ctx, scope, "hits", time.Minute)
		assert.Equal(t, int64(1), count)

		val, _ := c.Get(ctx, scope, "hits")
		assert.Equal(t, "cached", string(val))
	})

	t.Run("Catalog", func(t *testing.T) {
		catalog, err := cache.GetCatalog(ctx)
		require.NoError(t, err)
		assert.Nil(t, catalog, "expected miss before SetCatalog")

		in := []domain.OpportunityDefinition{
			{ID: "flight-delay", Category: domain.CategoryFlight, MinAmount: decimal.NewFromInt(250), MaxAmount: decimal.NewFromInt(600), Active: true},
			{ID: "bank-fees", Category: domain.CategoryBank, MinAmount: decimal.NewFromInt(50), MaxAmount: decimal.NewFromInt(500), Active: true},
		}
		require.NoError(t, cache.SetCatalog(ctx, in, time.Minute))

		catalog, err = cache.GetCatalog(ctx)
		require.NoError(t, err)
		require.Len(t, catalog, 2)
		assert.Equal(t, "flight-delay", catalog[0].ID)
		assert.True(t, catalog[1].MaxAmount.Equal(decimal.NewFromInt(500)))

		require.NoError(t, cache.InvalidateCatalog(ctx))
		catalog, err = cache.GetCatalog(ctx)
		require.NoError(t, err)
		assert.Nil(t, catalog)
	})

	t.Run("EmptyCatalogIsAHit", func(t *testing.T) {
		require.NoError(t, cache.SetCatalog(ctx, nil, time.Minute))

		catalog, err := cache.GetCatalog(ctx)
		require.NoError(t, err)
		assert.NotNil(t, catalog)
		assert.Empty(t, catalog)
	})

	t.Run("Stats", func(t *testing.T) {
		stats := NewLRUCache(50)
		_ = stats.Set(ctx, scope, "k1", []byte("v1"), time.Minute)
		_ = stats.Set(ctx, scope, "k2", []byte("v2"), time.Minute)

		size, capacity := stats.Stats()
		assert.Equal(t, 2, size)
		assert.Equal(t, 50, capacity)
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, cache.Ping(ctx))
	})

	t.Run("Close", func(t *testing.T) {
		c := NewLRUCache(10)
		_ = c.Set(ctx, scope, "k", []byte("v"), time.Minute)
		require.NoError(t, c.Close())

		val, _ := c.Get(ctx, scope, "k")
		assert.Nil(t, val)
	})
}

func TestNewCache(t *testing.T) {
	t.Run("MemoryType", func(t *testing.T) {
		cache, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 100})
		require.NoError(t, err)
		defer cache.Close()

		_, ok := cache.(*LRUCache)
		assert.True(t, ok, "expected LRUCache for memory type")
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		_, err := New(domain.CacheConfig{Type: "memcached"})
		assert.Error(t, err)
	})
}

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newClockedLRU(size int) (*LRUCache, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := NewLRUCache(size)
	c.now = clock.now
	return c, clock
}

func TestRedisOptions(t *testing.T) {
	t.Run("address defaults", func(t *testing.T) {
		opts, err := redisOptions("", "secret", 2)
		require.NoError(t, err)
		assert.Equal(t, "localhost:6379", opts.Addr)
		assert.Equal(t, "secret", opts.Password)
		assert.Equal(t, 2, opts.DB)
	})

	t.Run("url overrides password and db", func(t *testing.T) {
		opts, err := redisOptions("redis://:pw@cache.internal:6380/3", "ignored", 0)
		require.NoError(t, err)
		assert.Equal(t, "cache.internal:6380", opts.Addr)
		assert.Equal(t, "pw", opts.Password)
		assert.Equal(t, 3, opts.DB)
	})

	t.Run("bad url", func(t *testing.T) {
		_, err := redisOptions("redis://host:6379/notadb", "", 0)
		assert.Error(t, err)
	})
}
