package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const putContextScript = `
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
redis.call("ZADD", KEYS[2], ARGV[3], ARGV[4])
local count = redis.call("ZCARD", KEYS[2])
local capacity = tonumber(ARGV[5])
local pruned = 0
if count > capacity then
  local stale = redis.call("ZRANGE", KEYS[2], 0, count - capacity - 1)
  for _, sid in ipairs(stale) do
    redis.call("DEL", ARGV[6] .. sid)
  end
  redis.call("ZREMRANGEBYRANK", KEYS[2], 0, count - capacity - 1)
  pruned = #stale
end
return pruned
`

var putContextLua = redis.NewScript(putContextScript)

const deleteContextScript = `
redis.call("ZREM", KEYS[2], ARGV[1])
return redis.call("DEL", KEYS[1])
`

var deleteContextLua = redis.NewScript(deleteContextScript)

// RedisCache is a Cache shared across processes. Entries live under <prefix>:c:<sid>
// with a TTL; a sorted set <prefix>:idx scored by write time bounds the entry count.
type RedisCache struct {
	redis    redis.UniversalClient
	prefix   string
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

// NewRedisCache builds a RedisCache. ttl applies to entries without ExpiresAt.
func NewRedisCache(rdb redis.UniversalClient, prefix string, capacity int, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "ts"
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisCache{redis: rdb, prefix: prefix, capacity: capacity, ttl: ttl, now: time.Now}
}

func (r *RedisCache) entryPrefix() string { return r.prefix + ":c:" }

func (r *RedisCache) key(sessionID string) string { return r.entryPrefix() + sessionID }

func (r *RedisCache) indexKey() string { return r.prefix + ":idx" }

// Get implements Cache.
func (r *RedisCache) Get(ctx context.Context, sessionID string) (*Context, error) {
	data, err := r.redis.Get(ctx, r.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	c, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return c, nil
}

// Put implements Cache. The write and the pruning run in one script.
func (r *RedisCache) Put(ctx context.Context, c *Context) error {
	now := r.now()
	stored := c.clone()
	if stored.UpdatedAt == 0 {
		stored.UpdatedAt = now.Unix()
	}
	ttl := r.ttl
	if stored.ExpiresAt > 0 {
		ttl = time.Unix(stored.ExpiresAt, 0).Sub(now)
		if ttl <= 0 {
			return r.Delete(ctx, stored.SessionID)
		}
	}

	data, err := Encode(stored)
	if err != nil {
		return err
	}
	err = putContextLua.Run(ctx, r.redis,
		[]string{r.key(stored.SessionID), r.indexKey()},
		data, ttl.Milliseconds(), now.UnixMicro(), stored.SessionID, r.capacity, r.entryPrefix(),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Delete implements Cache. Deleting a missing entry is not an error.
func (r *RedisCache) Delete(ctx context.Context, sessionID string) error {
	err := deleteContextLua.Run(ctx, r.redis, []string{r.key(sessionID), r.indexKey()}, sessionID).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Len returns the size of the index. Entries whose TTL lapsed stay indexed until
// pruned, so Len is an upper bound.
func (r *RedisCache) Len(ctx context.Context) (int, error) {
	n, err := r.redis.ZCard(ctx, r.indexKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(n), nil
}

// Ping reports Redis round-trip latency.
func (r *RedisCache) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
