package treasury

import (
	"context"
	"log/slog"
	"math/big"
)

// Service exposes the treasury gateway operations consumed by payroll and
// recovery. Settlement transfers bypass this service and run inside the
// payroll transaction; Service covers the standalone paths (deposits,
// balance queries, recovered funds).
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService returns a treasury service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func validAmount(amount *big.Int) bool {
	return amount != nil && amount.Sign() > 0
}

// Deposit credits the treasury with funds received from a counterparty.
func (s *Service) Deposit(ctx context.Context, asset string, amount *big.Int, counterparty, memo string) (Movement, error) {
	if !validAmount(amount) {
		return Movement{}, ErrInvalidAmount
	}
	m, err := s.repo.Credit(ctx, asset, amount, counterparty, memo)
	if err != nil {
		return Movement{}, err
	}
	s.logger.Info("treasury deposit",
		slog.String("asset", asset),
		slog.String("amount", amount.String()),
		slog.String("ref", m.Ref.String()))
	return m, nil
}

// Transfer debits the treasury in favour of a recipient. Fails with
// ErrInsufficientFunds when the balance cannot cover the amount.
func (s *Service) Transfer(ctx context.Context, asset, recipient string, amount *big.Int, memo string) (Movement, error) {
	if !validAmount(amount) {
		return Movement{}, ErrInvalidAmount
	}
	m, err := s.repo.Debit(ctx, asset, amount, recipient, memo)
	if err != nil {
		return Movement{}, err
	}
	s.logger.Info("treasury transfer",
		slog.String("asset", asset),
		slog.String("recipient", recipient),
		slog.String("amount", amount.String()),
		slog.String("ref", m.Ref.String()))
	return m, nil
}

// Balance reports the treasury's holding of an asset.
func (s *Service) Balance(ctx context.Context, asset string) (*big.Int, error) {
	return s.repo.Balance(ctx, asset)
}

// Movements lists recent ledger entries for an asset.
func (s *Service) Movements(ctx context.Context, asset string, limit int) ([]Movement, error) {
	return s.repo.ListMovements(ctx, asset, limit)
}
