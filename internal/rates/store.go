package rates

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store keeps the latest quote per asset pair in Redis. It implements
// Gateway for readers; the feed refresher writes through Put.
type Store struct {
	client *redis.Client
}

// NewStore returns a Redis-backed quote store.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

func quoteKey(base, quote string) string {
	return fmt.Sprintf("rates:%s:%s", base, quote)
}

// Put stores a quote, overwriting any previous one for the pair.
func (s *Store) Put(ctx context.Context, base, quote string, q Quote) error {
	if q.Value == nil {
		return fmt.Errorf("rates: put %s/%s: nil value", base, quote)
	}
	err := s.client.HSet(ctx, quoteKey(base, quote), map[string]any{
		"value": q.Value.String(),
		"ts":    strconv.FormatInt(q.Timestamp.Unix(), 10),
	}).Err()
	if err != nil {
		return fmt.Errorf("rates: put %s/%s: %w", base, quote, err)
	}
	return nil
}

// Rate implements Gateway.
func (s *Store) Rate(ctx context.Context, base, quote string, _ time.Time) (Quote, error) {
	fields, err := s.client.HGetAll(ctx, quoteKey(base, quote)).Result()
	if err != nil {
		return Quote{}, fmt.Errorf("rates: get %s/%s: %w", base, quote, err)
	}
	if len(fields) == 0 {
		return Quote{}, ErrRateUnavailable
	}
	value, ok := new(big.Int).SetString(fields["value"], 10)
	if !ok {
		return Quote{}, fmt.Errorf("rates: get %s/%s: corrupt value %q", base, quote, fields["value"])
	}
	unix, err := strconv.ParseInt(fields["ts"], 10, 64)
	if err != nil {
		return Quote{}, fmt.Errorf("rates: get %s/%s: corrupt timestamp: %w", base, quote, err)
	}
	return Quote{Value: value, Timestamp: time.Unix(unix, 0).UTC()}, nil
}
