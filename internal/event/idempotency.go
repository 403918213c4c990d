package event

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	pkgkafka "github.com/utafrali/BackOfficeGo/pkg/kafka"
)

const processedKeyPrefix = "kafka:processed:"

// RedisIdempotencyStore remembers processed event IDs in Redis so duplicates
// are skipped across restarts and replicas.
type RedisIdempotencyStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisIdempotencyStore creates a Redis-backed idempotency store.
func NewRedisIdempotencyStore(client redis.Cmdable, ttl time.Duration) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client, ttl: ttl}
}

var _ pkgkafka.IdempotencyStore = (*RedisIdempotencyStore)(nil)

// Contains reports whether eventID was already processed.
func (s *RedisIdempotencyStore) Contains(ctx context.Context, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, processedKeyPrefix+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists event id: %w", err)
	}
	return n > 0, nil
}

// Add marks eventID as processed for the configured TTL.
func (s *RedisIdempotencyStore) Add(ctx context.Context, eventID string) error {
	if err := s.client.Set(ctx, processedKeyPrefix+eventID, 1, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set event id: %w", err)
	}
	return nil
}
