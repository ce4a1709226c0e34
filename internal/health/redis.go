// Package health provides readiness checks for the store, the shared Redis
// state and the distance provider.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// readyKey is written on each check. The rate limit and idempotency stores
// both write, so answering PING alone is not enough to serve requests.
const (
	readyKey    = "health:ready"
	readyKeyTTL = 30 * time.Second
)

// RedisChecker checks the Redis instance that backs the rate limit and
// idempotency stores.
type RedisChecker struct {
	client redis.Cmdable
}

// NewRedisChecker creates a checker for the shared store client.
func NewRedisChecker(client redis.Cmdable) *RedisChecker {
	return &RedisChecker{client: client}
}

// HealthCheck pings Redis and writes readyKey with a short TTL.
func (r *RedisChecker) HealthCheck(ctx context.Context) error {
	if r.client == nil {
		return fmt.Errorf("redis not configured")
	}
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	if err := r.client.Set(ctx, readyKey, time.Now().Unix(), readyKeyTTL).Err(); err != nil {
		return fmt.Errorf("write %s: %w", readyKey, err)
	}
	return nil
}
