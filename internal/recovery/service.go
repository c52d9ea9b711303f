// Package recovery reclaims assets held directly by the engine. Under
// normal operation the engine holds nothing: payroll pays straight out of
// the treasury. Balances only appear here when funds are pushed in through
// a channel the API cannot refuse and a reconciliation import records them.
// Recovery forwards such balances to the treasury without touching employee
// accounting.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RecoveredFundsMemo tags treasury deposits produced by recovery.
const RecoveredFundsMemo = "Recovered Funds"

// ErrInvalidAmount rejects nil, zero or negative discovered amounts.
var ErrInvalidAmount = errors.New("recovery: invalid amount")

// Service sweeps engine-held balances into the treasury.
type Service struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// NewService returns a recovery service.
func NewService(db *pgxpool.Pool, logger *slog.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// RecordDiscovered books funds found on the engine during reconciliation.
// The native-currency deposit path into the engine is rejected at the API
// boundary; this is the only way an engine balance comes into existence.
func (s *Service) RecordDiscovered(ctx context.Context, asset string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	_, err := s.db.Exec(ctx, `INSERT INTO engine_balances (asset, balance) VALUES ($1, $2::numeric)
ON CONFLICT (asset) DO UPDATE SET balance = engine_balances.balance + EXCLUDED.balance`, asset, amount.String())
	if err != nil {
		return fmt.Errorf("recovery: record discovered %s: %w", asset, err)
	}
	s.logger.Info("engine balance recorded",
		slog.String("asset", asset),
		slog.String("amount", amount.String()))
	return nil
}

// Recover forwards the engine's entire holding of one asset to the
// treasury. A zero balance is a no-op, not an error. Employee accounting is
// never involved.
func (s *Service) Recover(ctx context.Context, asset string) (*big.Int, error) {
	recovered := big.NewInt(0)
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, fmt.Errorf("recovery: begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var raw string
	err = tx.QueryRow(ctx, `SELECT balance::text FROM engine_balances WHERE asset=$1 FOR UPDATE`, asset).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return recovered, nil
		}
		return nil, fmt.Errorf("recovery: read balance %s: %w", asset, err)
	}
	balance, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("recovery: corrupt balance %q for %s", raw, asset)
	}
	if balance.Sign() == 0 {
		return recovered, nil
	}

	if _, err := tx.Exec(ctx, `UPDATE engine_balances SET balance = 0 WHERE asset=$1`, asset); err != nil {
		return nil, fmt.Errorf("recovery: clear balance %s: %w", asset, err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO treasury_balances (asset, balance) VALUES ($1, $2::numeric)
ON CONFLICT (asset) DO UPDATE SET balance = treasury_balances.balance + EXCLUDED.balance`, asset, balance.String()); err != nil {
		return nil, fmt.Errorf("recovery: credit treasury %s: %w", asset, err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO treasury_movements (ref, asset, direction, amount, counterparty, memo)
VALUES (gen_random_uuid(), $1, 'IN', $2::numeric, 'engine', $3)`, asset, balance.String(), RecoveredFundsMemo); err != nil {
		return nil, fmt.Errorf("recovery: log movement %s: %w", asset, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("recovery: commit: %w", err)
	}

	s.logger.Info("engine balance recovered",
		slog.String("asset", asset),
		slog.String("amount", balance.String()))
	return balance, nil
}

// RecoverAll sweeps every asset with a nonzero engine balance. Used by the
// periodic sweep job.
func (s *Service) RecoverAll(ctx context.Context) (int, error) {
	rows, err := s.db.Query(ctx, `SELECT asset FROM engine_balances WHERE balance > 0`)
	if err != nil {
		return 0, fmt.Errorf("recovery: list balances: %w", err)
	}
	var assets []string
	for rows.Next() {
		var asset string
		if err := rows.Scan(&asset); err != nil {
			rows.Close()
			return 0, err
		}
		assets = append(assets, asset)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	swept := 0
	for _, asset := range assets {
		amount, err := s.Recover(ctx, asset)
		if err != nil {
			return swept, err
		}
		if amount.Sign() > 0 {
			swept++
		}
	}
	return swept, nil
}
