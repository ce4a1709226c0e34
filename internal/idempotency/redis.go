package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix namespaces idempotency keys.
const redisKeyPrefix = "idempotency:"

// RedisRepository implements Repository in Redis. Records expire with the
// key TTL, so no cleanup job is needed.
type RedisRepository struct {
	client redis.Cmdable
	expiry time.Duration
}

// NewRedisRepository creates a Redis-backed repository. A non-positive
// expiry uses DefaultExpiry.
func NewRedisRepository(client redis.Cmdable, expiry time.Duration) *RedisRepository {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &RedisRepository{client: client, expiry: expiry}
}

// Get implements Repository.
func (r *RedisRepository) Get(ctx context.Context, key string) (*Record, error) {
	raw, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get idempotency key: %w", err)
	}

	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decode idempotency record: %w", err)
	}
	return &record, nil
}

// Store implements Repository.
func (r *RedisRepository) Store(ctx context.Context, record *Record) error {
	if record.Key == "" {
		return ErrInvalidKey
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode idempotency record: %w", err)
	}
	ok, err := r.client.SetNX(ctx, redisKeyPrefix+record.Key, raw, r.expiry).Result()
	if err != nil {
		return fmt.Errorf("store idempotency key: %w", err)
	}
	if !ok {
		return ErrKeyExists
	}
	return nil
}
