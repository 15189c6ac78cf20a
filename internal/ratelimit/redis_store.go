package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"lofi/internal/config"
)

// RedisKeyPrefix namespaces counters in a shared Redis.
const RedisKeyPrefix = "lofi:ratelimit:"

// takeScript admits into the window stored at KEYS[1].
// ARGV[1] is the ceiling, ARGV[2] the window in milliseconds.
// Returns {allowed, count, pttl}.
var takeScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local limit = tonumber(ARGV[1])
if current >= limit then
  local ttl = redis.call('PTTL', KEYS[1])
  if ttl < 0 then
    redis.call('PEXPIRE', KEYS[1], ARGV[2])
    ttl = tonumber(ARGV[2])
  end
  return {0, current, ttl}
end
current = redis.call('INCR', KEYS[1])
if current == 1 or redis.call('PTTL', KEYS[1]) < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return {1, current, redis.call('PTTL', KEYS[1])}
`)

// RedisStore keeps windows as expiring Redis counters.
type RedisStore struct {
	client redis.Scripter
	prefix string
}

// NewRedisStore wraps a Redis client.
func NewRedisStore(client redis.Scripter) *RedisStore {
	return &RedisStore{client: client, prefix: RedisKeyPrefix}
}

// NewRedisClient builds a client from the redis config section.
func NewRedisClient(cfg config.Redis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Take runs the admission script for key.
func (s *RedisStore) Take(ctx context.Context, key string, limit int, window time.Duration) (Window, error) {
	raw, err := takeScript.Run(ctx, s.client, []string{s.prefix + key}, limit, window.Milliseconds()).Slice()
	if err != nil {
		return Window{}, fmt.Errorf("redis take %q: %w", key, err)
	}
	if len(raw) != 3 {
		return Window{}, fmt.Errorf("redis take %q: unexpected reply %v", key, raw)
	}
	values := make([]int64, len(raw))
	for i, item := range raw {
		n, ok := item.(int64)
		if !ok {
			return Window{}, fmt.Errorf("redis take %q: unexpected reply element %T", key, item)
		}
		values[i] = n
	}
	return Window{
		Allowed: values[0] == 1,
		Count:   int(values[1]),
		TTL:     time.Duration(values[2]) * time.Millisecond,
	}, nil
}
