// Package treasury custodies the funds payroll settles from. It keeps one
// balance row per asset and an append-only movement log, and refuses any
// transfer the balance cannot cover.
package treasury

import (
	"errors"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// NativeAsset is the pseudo-asset identifier for the chain-native currency.
// It is settled through the treasury's native transfer branch rather than a
// token contract.
const NativeAsset = "NATIVE"

var (
	// ErrInsufficientFunds is returned when a transfer exceeds the balance.
	ErrInsufficientFunds = errors.New("treasury: insufficient funds")
	// ErrInvalidAmount is returned for nil, zero or negative amounts.
	ErrInvalidAmount = errors.New("treasury: invalid amount")
)

// MovementDirection enumerates movement kinds.
type MovementDirection string

const (
	MovementIn  MovementDirection = "IN"
	MovementOut MovementDirection = "OUT"
)

// Movement is one entry of the treasury movement log.
type Movement struct {
	ID           int64
	Ref          uuid.UUID
	Asset        string
	Direction    MovementDirection
	Amount       *big.Int
	Counterparty string
	Memo         string
	OccurredAt   time.Time
}
