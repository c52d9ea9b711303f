package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"
)

// feedQuote is one entry of the upstream JSON feed.
type feedQuote struct {
	Base      string `json:"base"`
	Quote     string `json:"quote"`
	Value     string `json:"value"`
	Timestamp int64  `json:"timestamp"`
}

// Refresher pulls the upstream price feed and writes quotes into the store.
// Concurrent refreshes collapse into a single upstream request.
type Refresher struct {
	url    string
	client *http.Client
	store  *Store
	group  singleflight.Group
}

// NewRefresher returns a feed refresher for the given feed URL.
func NewRefresher(url string, store *Store) *Refresher {
	return &Refresher{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		store:  store,
	}
}

// Refresh fetches the feed once and stores every quote it returns. The
// number of stored quotes is reported.
func (r *Refresher) Refresh(ctx context.Context) (int, error) {
	n, err, _ := r.group.Do("refresh", func() (any, error) {
		return r.refresh(ctx)
	})
	if err != nil {
		return 0, err
	}
	return n.(int), nil
}

func (r *Refresher) refresh(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return 0, fmt.Errorf("rates: build feed request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("rates: fetch feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("rates: feed returned status %d", resp.StatusCode)
	}

	var quotes []feedQuote
	if err := json.NewDecoder(resp.Body).Decode(&quotes); err != nil {
		return 0, fmt.Errorf("rates: decode feed: %w", err)
	}

	stored := 0
	for _, fq := range quotes {
		value, ok := new(big.Int).SetString(fq.Value, 10)
		if !ok || value.Sign() < 0 {
			continue
		}
		q := Quote{Value: value, Timestamp: time.Unix(fq.Timestamp, 0).UTC()}
		if err := r.store.Put(ctx, fq.Base, fq.Quote, q); err != nil {
			return stored, err
		}
		stored++
	}
	return stored, nil
}
