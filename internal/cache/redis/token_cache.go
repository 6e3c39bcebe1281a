package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/copybot/internal/domain"
)

// TokenCache caches resolved outcome token ids in Redis. Token ids never
// change for a market, but entries still carry a TTL so stale markets age
// out of the keyspace.
type TokenCache struct {
	rdb *redis.Client
}

// NewTokenCache creates a TokenCache backed by the given Client.
func NewTokenCache(c *Client) *TokenCache {
	return &TokenCache{rdb: c.Underlying()}
}

func tokenKey(marketID string, outcomeIndex int) string {
	return fmt.Sprintf("token:%s:%d", marketID, outcomeIndex)
}

// Get returns the cached token id, or domain.ErrNotFound on a miss.
func (tc *TokenCache) Get(ctx context.Context, marketID string, outcomeIndex int) (string, error) {
	val, err := tc.rdb.Get(ctx, tokenKey(marketID, outcomeIndex)).Result()
	if err == redis.Nil {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis: get token %s/%d: %w", marketID, outcomeIndex, err)
	}
	return val, nil
}

// Set stores a resolved token id with the given TTL.
func (tc *TokenCache) Set(ctx context.Context, marketID string, outcomeIndex int, tokenID string, ttl time.Duration) error {
	if err := tc.rdb.Set(ctx, tokenKey(marketID, outcomeIndex), tokenID, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set token %s/%d: %w", marketID, outcomeIndex, err)
	}
	return nil
}

var _ domain.TokenCache = (*TokenCache)(nil)
