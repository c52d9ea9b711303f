package payroll

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paystream-io/paystream/internal/platform/db"
	"github.com/paystream-io/paystream/internal/treasury"
)

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the pgx-backed payroll repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const employeeColumns = `id, account, salary::text, name, last_settled_at, active, allocation_changed_at`

func scanEmployee(row pgx.Row) (Employee, error) {
	var e Employee
	var raw string
	if err := row.Scan(&e.ID, &e.Account, &raw, &e.Name, &e.LastSettledAt, &e.Active, &e.AllocationChangedAt); err != nil {
		return Employee{}, err
	}
	salary, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return Employee{}, fmt.Errorf("payroll: employee %d: corrupt salary %q", e.ID, raw)
	}
	e.Salary = salary
	return e, nil
}

func (r *repository) GetConfig(ctx context.Context) (Config, error) {
	var cfg Config
	var stalenessSeconds int64
	err := r.db.QueryRow(ctx, `SELECT treasury, denomination_asset, rate_feed_url, staleness_bound_seconds, initialized, initialized_at
FROM payroll_config WHERE id=1`).
		Scan(&cfg.Treasury, &cfg.DenominationAsset, &cfg.RateFeedURL, &stalenessSeconds, &cfg.Initialized, &cfg.InitializedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Config{}, ErrNotInitialized
		}
		return Config{}, err
	}
	cfg.StalenessBound = time.Duration(stalenessSeconds) * time.Second
	return cfg, nil
}

func (r *repository) InitConfig(ctx context.Context, cfg Config) error {
	cmd, err := r.db.Exec(ctx, `INSERT INTO payroll_config (id, treasury, denomination_asset, rate_feed_url, staleness_bound_seconds, initialized, initialized_at)
VALUES (1, $1, $2, $3, $4, TRUE, NOW()) ON CONFLICT (id) DO NOTHING`,
		cfg.Treasury, cfg.DenominationAsset, cfg.RateFeedURL, int64(cfg.StalenessBound/time.Second))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAlreadyInitialized
	}
	return nil
}

func (r *repository) UpdateRateFeed(ctx context.Context, url string) error {
	cmd, err := r.db.Exec(ctx, `UPDATE payroll_config SET rate_feed_url=$1 WHERE id=1 AND initialized`, url)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotInitialized
	}
	return nil
}

func (r *repository) UpdateStalenessBound(ctx context.Context, bound time.Duration) error {
	cmd, err := r.db.Exec(ctx, `UPDATE payroll_config SET staleness_bound_seconds=$1 WHERE id=1 AND initialized`, int64(bound/time.Second))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotInitialized
	}
	return nil
}

func (r *repository) InsertEmployee(ctx context.Context, account string, salary *big.Int, name string, start time.Time) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO employees (account, salary, name, last_settled_at, active)
VALUES ($1, $2::numeric, $3, $4, TRUE) RETURNING id`, account, salary.String(), name, start).Scan(&id)
	if err != nil {
		if isDuplicateAccount(err) {
			return 0, ErrDuplicateAccount
		}
		return 0, err
	}
	return id, nil
}

func (r *repository) GetEmployee(ctx context.Context, id int64) (Employee, error) {
	e, err := scanEmployee(r.db.QueryRow(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Employee{}, ErrUnknownEmployee
		}
		return Employee{}, err
	}
	return e, nil
}

func (r *repository) GetActiveEmployeeByAccount(ctx context.Context, account string) (Employee, error) {
	e, err := scanEmployee(r.db.QueryRow(ctx, `SELECT `+employeeColumns+` FROM employees WHERE account=$1 AND active`, account))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Employee{}, ErrUnknownEmployee
		}
		return Employee{}, err
	}
	return e, nil
}

func (r *repository) UpdateSalary(ctx context.Context, id int64, salary *big.Int) error {
	cmd, err := r.db.Exec(ctx, `UPDATE employees SET salary=$2::numeric, updated_at=NOW() WHERE id=$1 AND active`, id, salary.String())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUnknownEmployee
	}
	return nil
}

func (r *repository) UpdateAccount(ctx context.Context, id int64, account string) error {
	cmd, err := r.db.Exec(ctx, `UPDATE employees SET account=$2, updated_at=NOW() WHERE id=$1 AND active`, id, account)
	if err != nil {
		if isDuplicateAccount(err) {
			return ErrDuplicateAccount
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUnknownEmployee
	}
	return nil
}

func (r *repository) AddAllowedAsset(ctx context.Context, asset string) error {
	_, err := r.db.Exec(ctx, `INSERT INTO allowed_assets (asset) VALUES ($1)`, asset)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "allowed_assets_pkey" {
			return ErrDuplicateAsset
		}
		return err
	}
	return nil
}

func (r *repository) IsAssetAllowed(ctx context.Context, asset string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM allowed_assets WHERE asset=$1)`, asset).Scan(&exists)
	return exists, err
}

func (r *repository) ListAllowedAssets(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT asset FROM allowed_assets ORDER BY asset`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var assets []string
	for rows.Next() {
		var asset string
		if err := rows.Scan(&asset); err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}

func (r *repository) ReplaceAllocation(ctx context.Context, employeeID int64, lines []AllocationLine, changedAt time.Time) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM allocations WHERE employee_id=$1`, employeeID); err != nil {
		return err
	}
	for _, line := range lines {
		if _, err := tx.Exec(ctx, `INSERT INTO allocations (employee_id, asset, percent) VALUES ($1,$2,$3)`,
			employeeID, line.Asset, line.Percent); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(ctx, `UPDATE employees SET allocation_changed_at=$2, updated_at=NOW() WHERE id=$1`, employeeID, changedAt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *repository) GetAllocation(ctx context.Context, employeeID int64) ([]AllocationLine, error) {
	return queryAllocation(ctx, r.db, employeeID)
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetEmployeeForUpdate(ctx context.Context, id int64) (Employee, error) {
	e, err := scanEmployee(r.tx.QueryRow(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Employee{}, ErrUnknownEmployee
		}
		return Employee{}, err
	}
	return e, nil
}

func (r *txRepository) GetAllocation(ctx context.Context, employeeID int64) ([]AllocationLine, error) {
	return queryAllocation(ctx, r.tx, employeeID)
}

func (r *txRepository) AdvanceWatermark(ctx context.Context, id int64, to time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE employees SET last_settled_at=$2, updated_at=NOW() WHERE id=$1 AND active AND last_settled_at < $2`, id, to)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUnknownEmployee
	}
	return nil
}

func (r *txRepository) TombstoneEmployee(ctx context.Context, id int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE employees SET active=FALSE, account='', name='', updated_at=NOW() WHERE id=$1 AND active`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUnknownEmployee
	}
	if _, err := r.tx.Exec(ctx, `DELETE FROM allocations WHERE employee_id=$1`, id); err != nil {
		return err
	}
	return nil
}

// DebitTreasury duplicates the treasury debit so it joins the settlement
// transaction; rolling back the settlement rolls back the debit too.
func (r *txRepository) DebitTreasury(ctx context.Context, asset string, amount *big.Int, recipient, memo string) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE treasury_balances SET balance = balance - $2::numeric WHERE asset=$1 AND balance >= $2::numeric`, asset, amount.String())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return treasury.ErrInsufficientFunds
	}
	_, err = r.tx.Exec(ctx, `INSERT INTO treasury_movements (ref, asset, direction, amount, counterparty, memo)
VALUES (gen_random_uuid(), $1, 'OUT', $2::numeric, $3, $4)`, asset, amount.String(), recipient, memo)
	return err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryAllocation(ctx context.Context, q querier, employeeID int64) ([]AllocationLine, error) {
	rows, err := q.Query(ctx, `SELECT asset, percent FROM allocations WHERE employee_id=$1 ORDER BY asset`, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []AllocationLine
	for rows.Next() {
		var line AllocationLine
		if err := rows.Scan(&line.Asset, &line.Percent); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func isDuplicateAccount(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_employees_active_account"
}
