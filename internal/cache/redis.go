package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/rimborsami/rimborsami/internal/domain"
)

// keyPrefix namespaces every key so the Redis instance can be shared.
const keyPrefix = "rimborsami:"

const (
	defaultRedisAddr = "localhost:6379"
	redisDialTimeout = 5 * time.Second
	redisIOTimeout   = time.Second
)

// windowCounter increments KEYS[1] and, on the first hit, expires it after
// ARGV[1] milliseconds. A window of 0 leaves the counter without expiry.
var windowCounter = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 and tonumber(ARGV[1]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// RedisCache stores values and counters in Redis, shared by every node.
type RedisCache struct {
	rdb *redis.Client
}

// NewRedisCache dials Redis and fails fast when it does not answer a PING.
// addr may also be a redis:// URL, in which case password and db are taken
// from it.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	opts, err := redisOptions(addr, password, db)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), redisDialTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, eris.Wrapf(err, "redis at %s did not answer", opts.Addr)
	}
	return &RedisCache{rdb: rdb}, nil
}

func redisOptions(addr, password string, db int) (*redis.Options, error) {
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		opts, err := redis.ParseURL(addr)
		if err != nil {
			return nil, eris.Wrap(err, "invalid redis url")
		}
		return opts, nil
	}
	if addr == "" {
		addr = defaultRedisAddr
	}
	return &redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  redisDialTimeout,
		ReadTimeout:  redisIOTimeout,
		WriteTimeout: redisIOTimeout,
	}, nil
}

// Get returns nil, nil when the key is absent.
func (c *RedisCache) Get(ctx context.Context, scope string, key string) ([]byte, error) {
	if scope == "" {
		return nil, ErrScopeRequired
	}
	k := redisKey(scope, key)
	b, err := c.rdb.Get(ctx, k).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, eris.Wrapf(err, "redis GET %s", k)
	}
	return b, nil
}

// Set stores value; a ttl of zero or less keeps it until deleted.
func (c *RedisCache) Set(ctx context.Context, scope string, key string, value []byte, ttl time.Duration) error {
	if scope == "" {
		return ErrScopeRequired
	}
	k := redisKey(scope, key)
	if err := c.rdb.Set(ctx, k, value, max(ttl, 0)).Err(); err != nil {
		return eris.Wrapf(err, "redis SET %s", k)
	}
	return nil
}

// Delete removes the key; a missing key is not an error.
func (c *RedisCache) Delete(ctx context.Context, scope string, key string) error {
	if scope == "" {
		return ErrScopeRequired
	}
	k := redisKey(scope, key)
	if err := c.rdb.Del(ctx, k).Err(); err != nil {
		return eris.Wrapf(err, "redis DEL %s", k)
	}
	return nil
}

// GetCatalog returns the cached active catalog.
func (c *RedisCache) GetCatalog(ctx context.Context) ([]domain.OpportunityDefinition, error) {
	return getCatalog(ctx, c)
}

// SetCatalog caches the active catalog.
func (c *RedisCache) SetCatalog(ctx context.Context, catalog []domain.OpportunityDefinition, ttl time.Duration) error {
	return setCatalog(ctx, c, catalog, ttl)
}

// InvalidateCatalog drops the cached catalog for every node.
func (c *RedisCache) InvalidateCatalog(ctx context.Context) error {
	return invalidateCatalog(ctx, c)
}

// IncrementCounter counts hits in a fixed window, atomically across nodes.
func (c *RedisCache) IncrementCounter(ctx context.Context, scope string, key string, window time.Duration) (int64, error) {
	if scope == "" {
		return 0, ErrScopeRequired
	}
	k := redisKey(scope, counterPrefix+key)
	n, err := windowCounter.Run(ctx, c.rdb, []string{k}, window.Milliseconds()).Int64()
	if err != nil {
		return 0, eris.Wrapf(err, "redis counter %s", k)
	}
	return n, nil
}

// Ping round-trips to the server.
func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return eris.Wrap(err, "redis ping")
	}
	return nil
}

// Close releases the connection pool.
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

func redisKey(scope, key string) string {
	return keyPrefix + scopedKey(scope, key)
}
