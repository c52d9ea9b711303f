package rates

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client)
}

func TestStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ts := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	value := new(big.Int).Mul(big.NewInt(3), Scale)
	require.NoError(t, store.Put(ctx, "USD", "TOKA", Quote{Value: value, Timestamp: ts}))

	got, err := store.Rate(ctx, "USD", "TOKA", ts)
	require.NoError(t, err)
	assert.Zero(t, got.Value.Cmp(value))
	assert.True(t, got.Timestamp.Equal(ts))
}

func TestStoreOverwrite(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ts := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, store.Put(ctx, "USD", "TOKA", Quote{Value: big.NewInt(1), Timestamp: ts.Add(-time.Hour)}))
	require.NoError(t, store.Put(ctx, "USD", "TOKA", Quote{Value: big.NewInt(2), Timestamp: ts}))

	got, err := store.Rate(ctx, "USD", "TOKA", ts)
	require.NoError(t, err)
	assert.Zero(t, got.Value.Cmp(big.NewInt(2)))
	assert.True(t, got.Timestamp.Equal(ts))
}

func TestStoreMissingPair(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Rate(context.Background(), "USD", "UNKNOWN", time.Now())
	assert.ErrorIs(t, err, ErrRateUnavailable)
}

func TestStoreRejectsNilValue(t *testing.T) {
	store := newTestStore(t)

	err := store.Put(context.Background(), "USD", "TOKA", Quote{Timestamp: time.Now()})
	assert.Error(t, err)
}
