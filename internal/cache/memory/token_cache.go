package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/copybot/internal/domain"
)

// TokenCache implements domain.TokenCache with an in-process map. Entries
// expire lazily on read.
type TokenCache struct {
	mu      sync.RWMutex
	entries map[string]tokenEntry
}

type tokenEntry struct {
	tokenID   string
	expiresAt time.Time
}

// NewTokenCache creates an empty TokenCache.
func NewTokenCache() *TokenCache {
	return &TokenCache{entries: make(map[string]tokenEntry)}
}

func tokenCacheKey(marketID string, outcomeIndex int) string {
	return fmt.Sprintf("%s:%d", marketID, outcomeIndex)
}

// Get returns the cached token id or domain.ErrNotFound.
func (tc *TokenCache) Get(_ context.Context, marketID string, outcomeIndex int) (string, error) {
	key := tokenCacheKey(marketID, outcomeIndex)

	tc.mu.RLock()
	entry, ok := tc.entries[key]
	tc.mu.RUnlock()

	if !ok {
		return "", domain.ErrNotFound
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		tc.mu.Lock()
		delete(tc.entries, key)
		tc.mu.Unlock()
		return "", domain.ErrNotFound
	}
	return entry.tokenID, nil
}

// Set stores the token id. A non-positive ttl means no expiry.
func (tc *TokenCache) Set(_ context.Context, marketID string, outcomeIndex int, tokenID string, ttl time.Duration) error {
	entry := tokenEntry{tokenID: tokenID}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}

	tc.mu.Lock()
	tc.entries[tokenCacheKey(marketID, outcomeIndex)] = entry
	tc.mu.Unlock()
	return nil
}

var _ domain.TokenCache = (*TokenCache)(nil)
