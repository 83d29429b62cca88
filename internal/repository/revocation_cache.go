package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const revokedKeyPrefix = "auth:revoked:"

// RevocationCache remembers revoked token ids so bearer checks can skip the
// token table.
type RevocationCache interface {
	MarkRevoked(ctx context.Context, tokenID uuid.UUID, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID uuid.UUID) (bool, error)
}

type redisRevocationCache struct {
	client *redis.Client
}

// NewRevocationCache returns a Redis-backed cache.
func NewRevocationCache(client *redis.Client) RevocationCache {
	return &redisRevocationCache{client: client}
}

func (c *redisRevocationCache) MarkRevoked(ctx context.Context, tokenID uuid.UUID, ttl time.Duration) error {
	return c.client.Set(ctx, revokedKeyPrefix+tokenID.String(), 1, ttl).Err()
}

func (c *redisRevocationCache) IsRevoked(ctx context.Context, tokenID uuid.UUID) (bool, error) {
	n, err := c.client.Exists(ctx, revokedKeyPrefix+tokenID.String()).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
