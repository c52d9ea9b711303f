package payroll

import (
	"context"
	"math/big"
	"time"
)

// Repository encapsulates DB operations for the payroll engine.
type Repository interface {
	GetConfig(ctx context.Context) (Config, error)
	InitConfig(ctx context.Context, cfg Config) error
	UpdateRateFeed(ctx context.Context, url string) error
	UpdateStalenessBound(ctx context.Context, bound time.Duration) error

	InsertEmployee(ctx context.Context, account string, salary *big.Int, name string, start time.Time) (int64, error)
	GetEmployee(ctx context.Context, id int64) (Employee, error)
	GetActiveEmployeeByAccount(ctx context.Context, account string) (Employee, error)
	UpdateSalary(ctx context.Context, id int64, salary *big.Int) error
	UpdateAccount(ctx context.Context, id int64, account string) error

	AddAllowedAsset(ctx context.Context, asset string) error
	IsAssetAllowed(ctx context.Context, asset string) (bool, error)
	ListAllowedAssets(ctx context.Context) ([]string, error)

	ReplaceAllocation(ctx context.Context, employeeID int64, lines []AllocationLine, changedAt time.Time) error
	GetAllocation(ctx context.Context, employeeID int64) ([]AllocationLine, error)

	// WithTx spans the settlement critical section: employee row lock, rate
	// application, treasury debits and watermark advance commit as one unit.
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the operations available within a settlement transaction.
type TxRepository interface {
	GetEmployeeForUpdate(ctx context.Context, id int64) (Employee, error)
	GetAllocation(ctx context.Context, employeeID int64) ([]AllocationLine, error)
	AdvanceWatermark(ctx context.Context, id int64, to time.Time) error
	TombstoneEmployee(ctx context.Context, id int64) error

	// DebitTreasury moves funds out of the treasury toward a recipient,
	// failing with treasury.ErrInsufficientFunds when the balance cannot
	// cover the amount. Duplicated from the treasury repository so the
	// debit shares the settlement transaction.
	DebitTreasury(ctx context.Context, asset string, amount *big.Int, recipient, memo string) error
}
