package domain

import (
	"context"
	"time"
)

// LockManager provides mutual exclusion keyed by an arbitrary string. The
// engine uses it to serialize tracking mutations per
// (copyRelationID, marketID, outcomeIndex).
type LockManager interface {
	// Acquire attempts to take the lock. On success it returns an unlock
	// function that is safe to call more than once. It returns ErrLockHeld
	// when another holder owns the lock.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// TokenCache caches resolved outcome token ids.
type TokenCache interface {
	// Get returns the cached token id or ErrNotFound.
	Get(ctx context.Context, marketID string, outcomeIndex int) (string, error)
	Set(ctx context.Context, marketID string, outcomeIndex int, tokenID string, ttl time.Duration) error
}
