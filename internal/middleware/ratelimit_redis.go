package middleware

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix namespaces rate limit keys.
const redisKeyPrefix = "ratelimit:"

// fixedWindowScript increments the window counter, starting the window on
// the first hit, and returns the count and remaining window in milliseconds.
var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {count, ttl}
`)

// RedisRateLimitStore implements RateLimitStore with a Redis fixed window
// counter, shared across API instances.
type RedisRateLimitStore struct {
	client redis.Scripter
}

// NewRedisRateLimitStore creates a Redis-backed rate limit store.
func NewRedisRateLimitStore(client redis.Scripter) *RedisRateLimitStore {
	return &RedisRateLimitStore{client: client}
}

// Allow implements RateLimitStore.
func (s *RedisRateLimitStore) Allow(ctx context.Context, key string, config RateLimitConfig) (bool, int, error) {
	res, err := fixedWindowScript.Run(ctx, s.client,
		[]string{redisKeyPrefix + key},
		config.WindowDuration.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return false, 0, err
	}

	count, ttlMillis := res[0], res[1]
	if count <= int64(config.RequestsPerWindow) {
		return true, 0, nil
	}
	if ttlMillis < 0 {
		ttlMillis = config.WindowDuration.Milliseconds()
	}
	return false, retryAfterSeconds(time.Duration(ttlMillis) * time.Millisecond), nil
}
