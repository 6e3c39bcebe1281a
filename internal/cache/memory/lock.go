// Package memory provides in-process implementations of the cache
// interfaces for deployments that run a single engine process without
// Redis, and for tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/copybot/internal/domain"
)

// KeyedLock implements domain.LockManager with an in-process mutex per key.
// The TTL is ignored: an in-process holder either unlocks or the process is
// gone, so there is nothing to expire.
type KeyedLock struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewKeyedLock creates an empty KeyedLock.
func NewKeyedLock() *KeyedLock {
	return &KeyedLock{held: make(map[string]struct{})}
}

// Acquire takes the lock for key, or returns domain.ErrLockHeld when
// another holder owns it. The returned unlock function is safe to call more
// than once.
func (kl *KeyedLock) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	if _, ok := kl.held[key]; ok {
		return nil, domain.ErrLockHeld
	}
	kl.held[key] = struct{}{}

	released := false
	unlock := func() {
		kl.mu.Lock()
		defer kl.mu.Unlock()
		if released {
			return
		}
		released = true
		delete(kl.held, key)
	}
	return unlock, nil
}

var _ domain.LockManager = (*KeyedLock)(nil)
