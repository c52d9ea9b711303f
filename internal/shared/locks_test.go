package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T, ttl time.Duration) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLocker(client, ttl), mr
}

func TestLockerAcquireRelease(t *testing.T) {
	locker, _ := newTestLocker(t, time.Minute)
	ctx := context.Background()
	key := SettlementLockKey(7)

	release, err := locker.Acquire(ctx, key)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, key)
	assert.ErrorIs(t, err, ErrLockHeld)

	release()

	release2, err := locker.Acquire(ctx, key)
	require.NoError(t, err)
	release2()
}

func TestLockerReleaseIsOwnerScoped(t *testing.T) {
	locker, mr := newTestLocker(t, time.Second)
	ctx := context.Background()
	key := SettlementLockKey(7)

	staleRelease, err := locker.Acquire(ctx, key)
	require.NoError(t, err)

	// First holder's lock expires and another holder takes the section.
	mr.FastForward(2 * time.Second)
	release, err := locker.Acquire(ctx, key)
	require.NoError(t, err)
	defer release()

	// The stale release must not evict the new holder.
	staleRelease()
	_, err = locker.Acquire(ctx, key)
	assert.ErrorIs(t, err, ErrLockHeld)
}

func TestLockerKeysAreScopedPerEmployee(t *testing.T) {
	locker, _ := newTestLocker(t, time.Minute)
	ctx := context.Background()

	release1, err := locker.Acquire(ctx, SettlementLockKey(1))
	require.NoError(t, err)
	defer release1()

	release2, err := locker.Acquire(ctx, SettlementLockKey(2))
	require.NoError(t, err)
	defer release2()
}
