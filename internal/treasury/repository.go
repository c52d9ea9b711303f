package treasury

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository encapsulates DB operations for the treasury ledger.
type Repository interface {
	Balance(ctx context.Context, asset string) (*big.Int, error)
	Credit(ctx context.Context, asset string, amount *big.Int, counterparty, memo string) (Movement, error)
	Debit(ctx context.Context, asset string, amount *big.Int, counterparty, memo string) (Movement, error)
	ListMovements(ctx context.Context, asset string, limit int) ([]Movement, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the pgx-backed treasury repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) Balance(ctx context.Context, asset string) (*big.Int, error) {
	var raw string
	err := r.db.QueryRow(ctx, `SELECT balance::text FROM treasury_balances WHERE asset=$1`, asset).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return big.NewInt(0), nil
		}
		return nil, fmt.Errorf("treasury: balance %s: %w", asset, err)
	}
	balance, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("treasury: balance %s: corrupt numeric %q", asset, raw)
	}
	return balance, nil
}

func (r *repository) Credit(ctx context.Context, asset string, amount *big.Int, counterparty, memo string) (Movement, error) {
	_, err := r.db.Exec(ctx, `INSERT INTO treasury_balances (asset, balance) VALUES ($1, $2::numeric)
ON CONFLICT (asset) DO UPDATE SET balance = treasury_balances.balance + EXCLUDED.balance`, asset, amount.String())
	if err != nil {
		return Movement{}, fmt.Errorf("treasury: credit %s: %w", asset, err)
	}
	return r.insertMovement(ctx, asset, MovementIn, amount, counterparty, memo)
}

func (r *repository) Debit(ctx context.Context, asset string, amount *big.Int, counterparty, memo string) (Movement, error) {
	cmd, err := r.db.Exec(ctx, `UPDATE treasury_balances SET balance = balance - $2::numeric WHERE asset=$1 AND balance >= $2::numeric`, asset, amount.String())
	if err != nil {
		return Movement{}, fmt.Errorf("treasury: debit %s: %w", asset, err)
	}
	if cmd.RowsAffected() == 0 {
		return Movement{}, ErrInsufficientFunds
	}
	return r.insertMovement(ctx, asset, MovementOut, amount, counterparty, memo)
}

func (r *repository) insertMovement(ctx context.Context, asset string, dir MovementDirection, amount *big.Int, counterparty, memo string) (Movement, error) {
	m := Movement{
		Ref:          uuid.New(),
		Asset:        asset,
		Direction:    dir,
		Amount:       new(big.Int).Set(amount),
		Counterparty: counterparty,
		Memo:         memo,
	}
	err := r.db.QueryRow(ctx, `INSERT INTO treasury_movements (ref, asset, direction, amount, counterparty, memo)
VALUES ($1,$2,$3,$4::numeric,$5,$6) RETURNING id, occurred_at`, m.Ref, m.Asset, m.Direction, m.Amount.String(), m.Counterparty, m.Memo).
		Scan(&m.ID, &m.OccurredAt)
	if err != nil {
		return Movement{}, fmt.Errorf("treasury: insert movement: %w", err)
	}
	return m, nil
}

func (r *repository) ListMovements(ctx context.Context, asset string, limit int) ([]Movement, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `SELECT id, ref, asset, direction, amount::text, counterparty, memo, occurred_at
FROM treasury_movements WHERE asset=$1 ORDER BY id DESC LIMIT $2`, asset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var movements []Movement
	for rows.Next() {
		var m Movement
		var raw string
		var occurredAt time.Time
		if err := rows.Scan(&m.ID, &m.Ref, &m.Asset, &m.Direction, &raw, &m.Counterparty, &m.Memo, &occurredAt); err != nil {
			return nil, err
		}
		amount, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			return nil, fmt.Errorf("treasury: movement %d: corrupt numeric %q", m.ID, raw)
		}
		m.Amount = amount
		m.OccurredAt = occurredAt
		movements = append(movements, m)
	}
	return movements, rows.Err()
}
