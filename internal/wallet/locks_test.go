package wallet

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedLocksExclusion(t *testing.T) {
	locks := newKeyedLocks()
	ctx := context.Background()

	release, err := locks.acquire(ctx, "a", 50*time.Millisecond)
	require.NoError(t, err)

	// Same key blocks until timeout.
	_, err = locks.acquire(ctx, "a", 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrLockTimeout)

	// Different keys are independent.
	releaseB, err := locks.acquire(ctx, "b", 50*time.Millisecond)
	require.NoError(t, err)
	releaseB()

	release()
	release, err = locks.acquire(ctx, "a", 50*time.Millisecond)
	require.NoError(t, err)
	release()
}

func TestKeyedLocksContextCancel(t *testing.T) {
	locks := newKeyedLocks()

	release, err := locks.acquire(context.Background(), "a", time.Second)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = locks.acquire(ctx, "a", time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}
