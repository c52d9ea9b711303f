// Package rates supplies exchange-rate quotes for settlement.
//
// Quotes are fixed-point integers scaled by 1e18 and carry the timestamp at
// which the upstream feed produced them. Staleness policy is the caller's
// concern; the gateway only reports what it knows.
package rates

import (
	"context"
	"errors"
	"math/big"
	"time"
)

// Scale is the fixed-point scale shared by every quote in the process.
var Scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// ErrRateUnavailable is returned when no quote exists for an asset pair.
var ErrRateUnavailable = errors.New("rates: rate unavailable")

// Quote is a fixed-point exchange rate with its feed timestamp.
type Quote struct {
	Value     *big.Int
	Timestamp time.Time
}

// Gateway answers exchange-rate queries. The at parameter is the logical
// settlement time; implementations may use it for cache keying but must
// return the quote's own feed timestamp, never at itself.
type Gateway interface {
	Rate(ctx context.Context, base, quote string, at time.Time) (Quote, error)
}
