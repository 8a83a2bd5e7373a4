package resultcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache plays the role of spec.md §4.1's "named memory region
// shared across co-located node instances": a Redis key namespace
// stands in for the mapped shared-memory segment, and Redis's own
// single-threaded command processing stands in for the region-head
// mutex. Capacity enforcement and the "new key over capacity fails,
// existing image survives" contract are implemented as a single Lua
// script so the check-then-set is atomic across any number of
// co-located callers, matching "lock hold time bounded by the cost of
// the current call only".
type RedisCache struct {
	client    *redis.Client
	namespace string
	maxItems  int
}

// putScript atomically checks capacity (only for brand-new keys) and
// writes the payload plus an index-set membership entry.
var putScript = redis.NewScript(`
local key = KEYS[1]
local idx = KEYS[2]
local payload = ARGV[1]
local ttlMs = tonumber(ARGV[2])
local maxItems = tonumber(ARGV[3])

local isNew = redis.call("SISMEMBER", idx, key) == 0
if isNew and maxItems > 0 then
	local count = redis.call("SCARD", idx)
	if count >= maxItems then
		return redis.error_reply("capacity_exceeded")
	end
end

if ttlMs > 0 then
	redis.call("SET", key, payload, "PX", ttlMs)
else
	redis.call("SET", key, payload)
end
redis.call("SADD", idx, key)
return redis.status_reply("OK")
`)

// NewRedisCache builds a cache backed by an existing go-redis client.
// namespace scopes every key so multiple crashmesh deployments can
// share one Redis instance safely. maxItems <= 0 means unbounded.
func NewRedisCache(client *redis.Client, namespace string, maxItems int) *RedisCache {
	return &RedisCache{client: client, namespace: namespace, maxItems: maxItems}
}

func (c *RedisCache) dataKey(key string) string  { return c.namespace + ":data:" + key }
func (c *RedisCache) indexKey() string            { return c.namespace + ":index" }

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	payload, err := c.client.Get(ctx, c.dataKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("resultcache: redis get: %w", err)
	}
	return payload, nil
}

func (c *RedisCache) Put(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	ttlMs := ttl.Milliseconds()
	err := putScript.Run(ctx, c.client, []string{c.dataKey(key), c.indexKey()},
		payload, ttlMs, c.maxItems).Err()
	if err == nil {
		return nil
	}
	if err.Error() == "capacity_exceeded" {
		return ErrCapacityExceeded
	}
	return fmt.Errorf("resultcache: redis put: %w", err)
}

func (c *RedisCache) Remove(ctx context.Context, key string) error {
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, c.dataKey(key))
	pipe.SRem(ctx, c.indexKey(), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("resultcache: redis remove: %w", err)
	}
	return nil
}

func (c *RedisCache) Clear(ctx context.Context) error {
	keys, err := c.client.SMembers(ctx, c.indexKey()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("resultcache: redis clear: list: %w", err)
	}

	pipe := c.client.TxPipeline()
	for _, k := range keys {
		pipe.Del(ctx, c.dataKey(k))
	}
	pipe.Del(ctx, c.indexKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("resultcache: redis clear: %w", err)
	}
	return nil
}

// Ping verifies the region is reachable, used once at startup to
// decide whether to degrade to MemoryCache.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
