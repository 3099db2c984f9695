package request

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trustgrid/samlsp/internal/core/domain"
	"github.com/trustgrid/samlsp/internal/core/ports"
)

const keyPrefix = "samlsp:request:"

// RedisRequestStore tracks pending request IDs in Redis so any instance
// behind a load balancer can consume an attempt started by another.
type RedisRequestStore struct {
	client *redis.Client
}

// NewRedisRequestStore creates a store over an existing client.
func NewRedisRequestStore(client *redis.Client) *RedisRequestStore {
	return &RedisRequestStore{client: client}
}

// Store saves a request ID with its expiry as the key TTL.
func (s *RedisRequestStore) Store(ctx context.Context, requestID string, expiry time.Time) error {
	ttl := time.Until(expiry)
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, keyPrefix+requestID, "1", ttl).Err(); err != nil {
		return domain.TransientError("failed to store pending request", err)
	}
	return nil
}

// Take consumes a request ID with GETDEL, which is atomic across
// instances. Expired keys are gone by TTL before this call sees them.
func (s *RedisRequestStore) Take(ctx context.Context, requestID string) (bool, error) {
	val, err := s.client.GetDel(ctx, keyPrefix+requestID).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, domain.TransientError("failed to consume pending request", err)
	}
	return val != "", nil
}

// Ensure RedisRequestStore implements ports.RequestStore
var _ ports.RequestStore = (*RedisRequestStore)(nil)
