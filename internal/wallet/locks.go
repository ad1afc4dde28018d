package wallet

import (
	"context"
	"sync"
	"time"
)

// keyedLocks is a per-key mutual-exclusion primitive with a bounded wait.
// Each key owns a one-slot semaphore; acquire blocks until the slot frees,
// the timeout elapses, or the context is canceled.
type keyedLocks struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{slots: make(map[string]chan struct{})}
}

func (k *keyedLocks) slot(key string) chan struct{} {
	k.mu.Lock()
	defer k.mu.Unlock()
	ch, ok := k.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		k.slots[key] = ch
	}
	return ch
}

// acquire takes the lock for key, returning a release func. Returns
// ErrLockTimeout if the slot is not free within timeout.
func (k *keyedLocks) acquire(ctx context.Context, key string, timeout time.Duration) (func(), error) {
	ch := k.slot(key)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-timer.C:
		return nil, ErrLockTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
