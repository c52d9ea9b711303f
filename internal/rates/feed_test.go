package rates

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefresherStoresFeedQuotes(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewStore(client)

	ts := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"base":"USD","quote":"TOKA","value":"1000000000000000000","timestamp":` + unix(ts) + `},
			{"base":"USD","quote":"TOKB","value":"2000000000000000000","timestamp":` + unix(ts) + `},
			{"base":"USD","quote":"BAD","value":"not-a-number","timestamp":` + unix(ts) + `}
		]`))
	}))
	t.Cleanup(server.Close)

	refresher := NewRefresher(server.URL, store)
	stored, err := refresher.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stored, "unparseable entries are skipped")

	got, err := store.Rate(context.Background(), "USD", "TOKB", ts)
	require.NoError(t, err)
	assert.Zero(t, got.Value.Cmp(new(big.Int).Mul(big.NewInt(2), Scale)))
	assert.True(t, got.Timestamp.Equal(ts))
}

func TestRefresherUpstreamFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	refresher := NewRefresher(server.URL, NewStore(client))
	_, err := refresher.Refresh(context.Background())
	assert.Error(t, err)
}

func unix(t time.Time) string {
	return big.NewInt(t.Unix()).String()
}
