package payroll

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/paystream-io/paystream/internal/shared"
	"github.com/paystream-io/paystream/internal/treasury"
)

// Settle pays the caller's accrued salary since the last settlement,
// apportioned across the employee's allocation, and advances the watermark.
// Transfers and the watermark advance commit as one transaction; any rate or
// funds failure rolls the whole settlement back.
func (s *Service) Settle(ctx context.Context, employeeID int64, caller string) (Settlement, error) {
	cfg, err := s.requireInit(ctx)
	if err != nil {
		return Settlement{}, err
	}

	release, err := s.locker.Acquire(ctx, shared.SettlementLockKey(employeeID))
	if err != nil {
		if errors.Is(err, shared.ErrLockHeld) {
			s.observeSettlement("in_progress", 0)
			return Settlement{}, ErrSettlementInProgress
		}
		return Settlement{}, err
	}
	defer release()

	now := s.clock()
	var result Settlement
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		emp, err := tx.GetEmployeeForUpdate(ctx, employeeID)
		if err != nil {
			return err
		}
		if !emp.Active {
			return ErrUnknownEmployee
		}
		if emp.Account != caller {
			return ErrUnauthorized
		}
		result, err = s.settleInTx(ctx, tx, cfg, emp, now, false)
		return err
	})
	if err != nil {
		s.observeSettlement(settlementOutcome(err), 0)
		return Settlement{}, err
	}

	s.observeSettlement("paid", len(result.Transfers))
	s.logger.Info("settlement paid",
		slog.Int64("employee_id", employeeID),
		slog.Duration("elapsed", result.Elapsed),
		slog.Int("transfers", len(result.Transfers)))
	s.auditSettlement(ctx, result)
	return result, nil
}

// SettleByAccount resolves the caller's employee record and settles it.
// Non-employees fail the caller check outright.
func (s *Service) SettleByAccount(ctx context.Context, account string) (Settlement, error) {
	if account == "" {
		return Settlement{}, ErrUnauthorized
	}
	emp, err := s.repo.GetActiveEmployeeByAccount(ctx, account)
	if err != nil {
		if errors.Is(err, ErrUnknownEmployee) {
			return Settlement{}, ErrUnauthorized
		}
		return Settlement{}, err
	}
	return s.Settle(ctx, emp.ID, account)
}

// RemoveEmployee settles any accrued salary on the employee's behalf and
// tombstones the record. The id is never reassigned.
func (s *Service) RemoveEmployee(ctx context.Context, id int64) (Settlement, error) {
	cfg, err := s.requireInit(ctx)
	if err != nil {
		return Settlement{}, err
	}

	release, err := s.locker.Acquire(ctx, shared.SettlementLockKey(id))
	if err != nil {
		if errors.Is(err, shared.ErrLockHeld) {
			return Settlement{}, ErrSettlementInProgress
		}
		return Settlement{}, err
	}
	defer release()

	now := s.clock()
	var result Settlement
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		emp, err := tx.GetEmployeeForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !emp.Active {
			return ErrUnknownEmployee
		}
		result, err = s.settleInTx(ctx, tx, cfg, emp, now, true)
		if err != nil {
			return err
		}
		return tx.TombstoneEmployee(ctx, id)
	})
	if err != nil {
		return Settlement{}, err
	}

	if len(result.Transfers) > 0 {
		s.observeSettlement("paid", len(result.Transfers))
		s.auditSettlement(ctx, result)
	}
	s.recordAudit(ctx, "employee.remove", "employee", strconv.FormatInt(id, 10), nil)
	return result, nil
}

// settleInTx runs the settlement arithmetic inside the caller's transaction.
// When final is set (removal path) an empty accrual is tolerated instead of
// failing with ErrNothingOwed/ErrNoAllocation, and the watermark is left
// alone since the record is about to be tombstoned.
func (s *Service) settleInTx(ctx context.Context, tx TxRepository, cfg Config, emp Employee, now time.Time, final bool) (Settlement, error) {
	result := Settlement{EmployeeID: emp.ID, SettledAt: now}

	elapsed := now.Sub(emp.LastSettledAt)
	elapsedSeconds := int64(elapsed / time.Second)
	if elapsedSeconds <= 0 {
		if final {
			return result, nil
		}
		return Settlement{}, ErrNothingOwed
	}
	result.Elapsed = time.Duration(elapsedSeconds) * time.Second

	lines, err := tx.GetAllocation(ctx, emp.ID)
	if err != nil {
		return Settlement{}, err
	}
	if len(lines) == 0 {
		if final {
			return result, nil
		}
		return Settlement{}, ErrNoAllocation
	}

	// All assets observe rates at the same logical now; a long multi-asset
	// settlement never straddles a wall-clock jump.
	for _, line := range lines {
		if line.Percent == 0 {
			continue
		}
		quote, err := s.gateway.Rate(ctx, cfg.DenominationAsset, line.Asset, now)
		if err != nil {
			return Settlement{}, err
		}
		if now.Sub(quote.Timestamp) > cfg.StalenessBound {
			return Settlement{}, ErrStaleRate
		}
		if quote.Value.Sign() == 0 {
			return Settlement{}, ErrZeroRate
		}
		amount := OwedAmount(emp.Salary, quote.Value, line.Percent, elapsedSeconds)
		if amount.Sign() == 0 {
			// A share can round to zero without failing the others.
			continue
		}
		if err := tx.DebitTreasury(ctx, line.Asset, amount, emp.Account, "Payroll"); err != nil {
			return Settlement{}, err
		}
		result.Transfers = append(result.Transfers, SettlementTransfer{
			Asset:     line.Asset,
			Amount:    amount,
			Recipient: emp.Account,
		})
	}

	if !final {
		if err := tx.AdvanceWatermark(ctx, emp.ID, now); err != nil {
			return Settlement{}, err
		}
	}
	return result, nil
}

func (s *Service) observeSettlement(outcome string, transfers int) {
	if s.metrics != nil {
		s.metrics.ObserveSettlement(outcome, transfers)
	}
}

func (s *Service) auditSettlement(ctx context.Context, result Settlement) {
	meta := map[string]any{
		"elapsed_seconds": int64(result.Elapsed / time.Second),
	}
	for _, t := range result.Transfers {
		meta[t.Asset] = formatAmount(t.Amount)
	}
	s.recordAudit(ctx, "settlement.pay", "employee", strconv.FormatInt(result.EmployeeID, 10), meta)
}

func settlementOutcome(err error) string {
	switch {
	case errors.Is(err, ErrNothingOwed):
		return "nothing_owed"
	case errors.Is(err, ErrStaleRate):
		return "stale_rate"
	case errors.Is(err, ErrZeroRate):
		return "zero_rate"
	case errors.Is(err, ErrNoAllocation):
		return "no_allocation"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, treasury.ErrInsufficientFunds):
		return "insufficient_funds"
	default:
		return "failed"
	}
}
