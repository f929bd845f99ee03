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

// newTestRedisLocker creates a RedisLocker backed by a miniredis server.
func newTestRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisLocker(client), mr
}

func TestRedisLocker_MutualExclusion(t *testing.T) {
	ctx := context.Background()
	locker, _ := newTestRedisLocker(t)

	token, ok, err := locker.Acquire(ctx, "renewal:sub:1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, token)

	// A second worker must not get the same guard.
	_, ok, err = locker.Acquire(ctx, "renewal:sub:1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// A different subscription's guard is independent.
	_, ok, err = locker.Acquire(ctx, "renewal:sub:2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLocker_ReleaseAllowsReacquire(t *testing.T) {
	ctx := context.Background()
	locker, _ := newTestRedisLocker(t)

	token, ok, err := locker.Acquire(ctx, "renewal:scan", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, locker.Release(ctx, "renewal:scan", token))

	_, ok, err = locker.Acquire(ctx, "renewal:scan", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLocker_ReleaseWithForeignTokenIsNoop(t *testing.T) {
	ctx := context.Background()
	locker, _ := newTestRedisLocker(t)

	_, ok, err := locker.Acquire(ctx, "renewal:sub:7", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// A stale holder must not be able to drop the current holder's lock.
	require.NoError(t, locker.Release(ctx, "renewal:sub:7", "stale-token"))

	_, ok, err = locker.Acquire(ctx, "renewal:sub:7", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisLocker_ExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	locker, mr := newTestRedisLocker(t)

	_, ok, err := locker.Acquire(ctx, "renewal:sub:9", 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	// A crashed holder never releases; the TTL unblocks future scans.
	mr.FastForward(31 * time.Second)

	_, ok, err = locker.Acquire(ctx, "renewal:sub:9", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryLocker_MutualExclusionAndExpiry(t *testing.T) {
	ctx := context.Background()
	locker := NewMemoryLocker()

	now := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	locker.now = func() time.Time { return now }

	token, ok, err := locker.Acquire(ctx, "renewal:sub:1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, _ = locker.Acquire(ctx, "renewal:sub:1", time.Minute)
	assert.False(t, ok)

	// Foreign token release is a no-op.
	require.NoError(t, locker.Release(ctx, "renewal:sub:1", "other"))
	_, ok, _ = locker.Acquire(ctx, "renewal:sub:1", time.Minute)
	assert.False(t, ok)

	// Own token release frees the key.
	require.NoError(t, locker.Release(ctx, "renewal:sub:1", token))
	_, ok, _ = locker.Acquire(ctx, "renewal:sub:1", time.Minute)
	assert.True(t, ok)

	// TTL expiry frees the key without a release.
	now = now.Add(2 * time.Minute)
	_, ok, _ = locker.Acquire(ctx, "renewal:sub:1", time.Minute)
	assert.True(t, ok)
}
