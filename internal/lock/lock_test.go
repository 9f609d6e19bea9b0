package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client), mr
}

func TestTryAcquireAndRelease(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	lease, ok, err := locker.TryAcquire(ctx, "order:1", 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists(KeyPrefix+"order:1"))

	// A second claim on the same key fails while the first is held.
	_, ok, err = locker.TryAcquire(ctx, "order:1", 10*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	// A different key is independent.
	_, ok, err = locker.TryAcquire(ctx, "order:2", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, lease.Release(ctx))
	assert.False(t, mr.Exists(KeyPrefix+"order:1"))

	_, ok, err = locker.TryAcquire(ctx, "order:1", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReleaseChecksOwnership(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	stale, ok, err := locker.TryAcquire(ctx, "order:1", 1*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	// The lease expires while its holder is still running.
	mr.FastForward(2 * time.Second)

	current, ok, err := locker.TryAcquire(ctx, "order:1", 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	// The stale holder's late release must not delete the new claim.
	require.NoError(t, stale.Release(ctx))
	assert.True(t, mr.Exists(KeyPrefix+"order:1"))

	_, ok, err = locker.TryAcquire(ctx, "order:1", 10*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, current.Release(ctx))
	assert.False(t, mr.Exists(KeyPrefix+"order:1"))
}

func TestLeaseExpiresByTTL(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	_, ok, err := locker.TryAcquire(ctx, "order:1", 1*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	// A crashed holder never releases; the claim self-heals after the TTL.
	mr.FastForward(2 * time.Second)

	_, ok, err = locker.TryAcquire(ctx, "order:1", 1*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}
