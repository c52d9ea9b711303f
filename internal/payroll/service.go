package payroll

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"github.com/paystream-io/paystream/internal/observability"
	"github.com/paystream-io/paystream/internal/rates"
	"github.com/paystream-io/paystream/internal/shared"
)

// AuditPort records administrative and settlement actions.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service implements the payroll engine operations.
type Service struct {
	repo    Repository
	gateway rates.Gateway
	locker  *shared.Locker
	audit   AuditPort
	metrics *observability.Metrics
	logger  *slog.Logger

	allocationCooldown time.Duration
	now                func() time.Time
}

// NewService wires the payroll service. The allocation cooldown limits how
// often an employee may change their payout split; zero disables the gate.
func NewService(repo Repository, gateway rates.Gateway, locker *shared.Locker, audit AuditPort, metrics *observability.Metrics, logger *slog.Logger, allocationCooldown time.Duration) *Service {
	return &Service{
		repo:               repo,
		gateway:            gateway,
		locker:             locker,
		audit:              audit,
		metrics:            metrics,
		logger:             logger,
		allocationCooldown: allocationCooldown,
		now:                time.Now,
	}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Second)
}

func (s *Service) requireInit(ctx context.Context) (Config, error) {
	cfg, err := s.repo.GetConfig(ctx)
	if err != nil {
		return Config{}, err
	}
	if !cfg.Initialized {
		return Config{}, ErrNotInitialized
	}
	return cfg, nil
}

// Initialize sets the global payroll parameters. Callable exactly once.
func (s *Service) Initialize(ctx context.Context, treasuryName, denominationAsset, rateFeedURL string, stalenessBound time.Duration) error {
	if treasuryName == "" {
		return ErrInvalidTreasury
	}
	if denominationAsset == "" {
		return ErrAssetNotAllowed
	}
	if rateFeedURL == "" {
		return ErrInvalidRateFeed
	}
	if stalenessBound <= 0 {
		return ErrZeroStaleness
	}
	err := s.repo.InitConfig(ctx, Config{
		Treasury:          treasuryName,
		DenominationAsset: denominationAsset,
		RateFeedURL:       rateFeedURL,
		StalenessBound:    stalenessBound,
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "payroll.initialize", "config", "1", map[string]any{
		"treasury":           treasuryName,
		"denomination_asset": denominationAsset,
		"staleness_bound":    stalenessBound.String(),
	})
	return nil
}

// SetRateFeed points the engine at a new exchange-rate feed.
func (s *Service) SetRateFeed(ctx context.Context, url string) error {
	if url == "" {
		return ErrInvalidRateFeed
	}
	if _, err := s.requireInit(ctx); err != nil {
		return err
	}
	if err := s.repo.UpdateRateFeed(ctx, url); err != nil {
		return err
	}
	s.recordAudit(ctx, "config.rate_feed", "config", "1", map[string]any{"url": url})
	return nil
}

// SetStalenessBound replaces the maximum accepted quote age. Zero is rejected:
// it would make every settlement fail the staleness gate.
func (s *Service) SetStalenessBound(ctx context.Context, bound time.Duration) error {
	if bound <= 0 {
		return ErrZeroStaleness
	}
	if _, err := s.requireInit(ctx); err != nil {
		return err
	}
	if err := s.repo.UpdateStalenessBound(ctx, bound); err != nil {
		return err
	}
	s.recordAudit(ctx, "config.staleness", "config", "1", map[string]any{"bound": bound.String()})
	return nil
}

// AddAllowedAsset adds an asset to the settlement allow-list.
func (s *Service) AddAllowedAsset(ctx context.Context, asset string) error {
	if asset == "" {
		return ErrAssetNotAllowed
	}
	if _, err := s.requireInit(ctx); err != nil {
		return err
	}
	if err := s.repo.AddAllowedAsset(ctx, asset); err != nil {
		return err
	}
	s.recordAudit(ctx, "asset.allow", "asset", asset, nil)
	return nil
}

// AllowedAssets lists the settlement allow-list.
func (s *Service) AllowedAssets(ctx context.Context) ([]string, error) {
	return s.repo.ListAllowedAssets(ctx)
}

// AddEmployee registers an employee. The annual salary is truncated to an
// exact per-second accrual rate before storage; start defaults to now and
// becomes the initial settlement watermark.
func (s *Service) AddEmployee(ctx context.Context, account string, annualSalary *big.Int, name string, start *time.Time) (int64, error) {
	if account == "" {
		return 0, ErrInvalidAccount
	}
	if annualSalary == nil || annualSalary.Sign() <= 0 {
		return 0, ErrInvalidSalary
	}
	if _, err := s.requireInit(ctx); err != nil {
		return 0, err
	}
	if _, err := s.repo.GetActiveEmployeeByAccount(ctx, account); err == nil {
		return 0, ErrDuplicateAccount
	} else if !errors.Is(err, ErrUnknownEmployee) {
		return 0, err
	}

	startAt := s.clock()
	if start != nil {
		startAt = start.UTC().Truncate(time.Second)
	}
	salary := NormalizeAnnualSalary(annualSalary)
	id, err := s.repo.InsertEmployee(ctx, account, salary, name, startAt)
	if err != nil {
		return 0, err
	}
	s.recordAudit(ctx, "employee.add", "employee", strconv.FormatInt(id, 10), map[string]any{
		"account": account,
		"salary":  formatAmount(salary),
		"start":   startAt.Format(time.RFC3339),
	})
	return id, nil
}

// GetEmployee returns a snapshot of the employee record. Tombstoned and
// unassigned ids yield the zeroed sentinel rather than an error; the empty
// account field is the only removal marker exposed.
func (s *Service) GetEmployee(ctx context.Context, id int64) (Employee, error) {
	e, err := s.repo.GetEmployee(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUnknownEmployee) {
			return Employee{ID: id, Salary: new(big.Int)}, nil
		}
		return Employee{}, err
	}
	if !e.Active {
		return Employee{ID: id, Salary: new(big.Int)}, nil
	}
	return e, nil
}

// GetEmployeeByAccount resolves the active employee owning an account.
func (s *Service) GetEmployeeByAccount(ctx context.Context, account string) (Employee, error) {
	if account == "" {
		return Employee{}, ErrInvalidAccount
	}
	return s.repo.GetActiveEmployeeByAccount(ctx, account)
}

// SetSalary replaces an active employee's salary. Accrual up to this moment
// is not settled here; the new rate applies from the existing watermark on
// the next settlement.
func (s *Service) SetSalary(ctx context.Context, id int64, annualSalary *big.Int) error {
	if annualSalary == nil || annualSalary.Sign() <= 0 {
		return ErrInvalidSalary
	}
	if _, err := s.requireInit(ctx); err != nil {
		return err
	}
	salary := NormalizeAnnualSalary(annualSalary)
	if err := s.repo.UpdateSalary(ctx, id, salary); err != nil {
		return err
	}
	s.recordAudit(ctx, "employee.salary", "employee", strconv.FormatInt(id, 10), map[string]any{
		"salary": formatAmount(salary),
	})
	return nil
}

// ChangeAccount lets the employee owning callerAccount move their record to
// a new account identity.
func (s *Service) ChangeAccount(ctx context.Context, callerAccount, newAccount string) error {
	if newAccount == "" {
		return ErrInvalidAccount
	}
	if _, err := s.requireInit(ctx); err != nil {
		return err
	}
	emp, err := s.repo.GetActiveEmployeeByAccount(ctx, callerAccount)
	if err != nil {
		if errors.Is(err, ErrUnknownEmployee) {
			return ErrUnauthorized
		}
		return err
	}
	if _, err := s.repo.GetActiveEmployeeByAccount(ctx, newAccount); err == nil {
		return ErrDuplicateAccount
	} else if !errors.Is(err, ErrUnknownEmployee) {
		return err
	}
	if err := s.repo.UpdateAccount(ctx, emp.ID, newAccount); err != nil {
		return err
	}
	s.recordAudit(ctx, "employee.account", "employee", strconv.FormatInt(emp.ID, 10), map[string]any{
		"old": callerAccount,
		"new": newAccount,
	})
	return nil
}

// SetAllocation overwrites the employee's payout split wholesale. The
// percentages must cover allowed assets only and sum to exactly 100.
func (s *Service) SetAllocation(ctx context.Context, employeeID int64, caller string, assets []string, percents []int64) error {
	if len(assets) != len(percents) {
		return ErrLengthMismatch
	}
	if _, err := s.requireInit(ctx); err != nil {
		return err
	}
	emp, err := s.repo.GetEmployee(ctx, employeeID)
	if err != nil {
		return err
	}
	if !emp.Active {
		return ErrUnknownEmployee
	}
	if emp.Account != caller {
		return ErrUnauthorized
	}

	now := s.clock()
	if s.allocationCooldown > 0 && emp.AllocationChangedAt != nil {
		if now.Sub(*emp.AllocationChangedAt) < s.allocationCooldown {
			return ErrAllocationCooldown
		}
	}

	lines := make([]AllocationLine, 0, len(assets))
	seen := make(map[string]bool, len(assets))
	var total int64
	for i, asset := range assets {
		allowed, err := s.repo.IsAssetAllowed(ctx, asset)
		if err != nil {
			return err
		}
		if !allowed {
			return ErrAssetNotAllowed
		}
		if seen[asset] {
			return ErrInvalidTotal
		}
		seen[asset] = true
		pct := percents[i]
		// Running total is bounded before each addition so no input can
		// wrap the accumulator into a valid-looking 100.
		if pct < 0 || pct > 100 || total > 100-pct {
			return ErrInvalidTotal
		}
		total += pct
		lines = append(lines, AllocationLine{Asset: asset, Percent: pct})
	}
	if total != 100 {
		return ErrInvalidTotal
	}

	if err := s.repo.ReplaceAllocation(ctx, employeeID, lines, now); err != nil {
		return err
	}
	s.recordAudit(ctx, "allocation.set", "employee", strconv.FormatInt(employeeID, 10), map[string]any{
		"assets": assets,
	})
	return nil
}

// GetAllocation returns the percentage allocated to one asset; assets with
// no explicit entry report zero.
func (s *Service) GetAllocation(ctx context.Context, employeeID int64, asset string) (int64, error) {
	lines, err := s.repo.GetAllocation(ctx, employeeID)
	if err != nil {
		return 0, err
	}
	for _, line := range lines {
		if line.Asset == asset {
			return line.Percent, nil
		}
	}
	return 0, nil
}

func (s *Service) recordAudit(ctx context.Context, action, entity, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	log := shared.AuditLog{
		Actor:    shared.CallerFromContext(ctx),
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Meta:     meta,
		At:       s.clock(),
	}
	if shared.IsAdmin(ctx) && log.Actor == "" {
		log.Actor = "admin"
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
