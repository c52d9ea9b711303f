package payroll

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paystream-io/paystream/internal/observability"
	"github.com/paystream-io/paystream/internal/rates"
	"github.com/paystream-io/paystream/internal/shared"
	"github.com/paystream-io/paystream/internal/treasury"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type debitRecord struct {
	asset     string
	amount    *big.Int
	recipient string
	memo      string
}

type mockRepository struct {
	cfg         *Config
	employees   map[int64]*Employee
	allocations map[int64][]AllocationLine
	allowed     map[string]bool
	balances    map[string]*big.Int
	debits      []debitRecord
	nextID      int64

	// Error injection
	txError    error
	debitError error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		employees:   make(map[int64]*Employee),
		allocations: make(map[int64][]AllocationLine),
		allowed:     make(map[string]bool),
		balances:    make(map[string]*big.Int),
		nextID:      1,
	}
}

func (m *mockRepository) GetConfig(ctx context.Context) (Config, error) {
	if m.cfg == nil {
		return Config{}, nil
	}
	return *m.cfg, nil
}

func (m *mockRepository) InitConfig(ctx context.Context, cfg Config) error {
	if m.cfg != nil {
		return ErrAlreadyInitialized
	}
	cfg.Initialized = true
	m.cfg = &cfg
	return nil
}

func (m *mockRepository) UpdateRateFeed(ctx context.Context, url string) error {
	if m.cfg == nil {
		return ErrNotInitialized
	}
	m.cfg.RateFeedURL = url
	return nil
}

func (m *mockRepository) UpdateStalenessBound(ctx context.Context, bound time.Duration) error {
	if m.cfg == nil {
		return ErrNotInitialized
	}
	m.cfg.StalenessBound = bound
	return nil
}

func (m *mockRepository) InsertEmployee(ctx context.Context, account string, salary *big.Int, name string, start time.Time) (int64, error) {
	id := m.nextID
	m.nextID++
	m.employees[id] = &Employee{
		ID:            id,
		Account:       account,
		Salary:        new(big.Int).Set(salary),
		Name:          name,
		LastSettledAt: start,
		Active:        true,
	}
	return id, nil
}

func (m *mockRepository) GetEmployee(ctx context.Context, id int64) (Employee, error) {
	e, ok := m.employees[id]
	if !ok {
		return Employee{}, ErrUnknownEmployee
	}
	return *e, nil
}

func (m *mockRepository) GetActiveEmployeeByAccount(ctx context.Context, account string) (Employee, error) {
	for _, e := range m.employees {
		if e.Active && e.Account == account {
			return *e, nil
		}
	}
	return Employee{}, ErrUnknownEmployee
}

func (m *mockRepository) UpdateSalary(ctx context.Context, id int64, salary *big.Int) error {
	e, ok := m.employees[id]
	if !ok || !e.Active {
		return ErrUnknownEmployee
	}
	e.Salary = new(big.Int).Set(salary)
	return nil
}

func (m *mockRepository) UpdateAccount(ctx context.Context, id int64, account string) error {
	e, ok := m.employees[id]
	if !ok || !e.Active {
		return ErrUnknownEmployee
	}
	e.Account = account
	return nil
}

func (m *mockRepository) AddAllowedAsset(ctx context.Context, asset string) error {
	if m.allowed[asset] {
		return ErrDuplicateAsset
	}
	m.allowed[asset] = true
	return nil
}

func (m *mockRepository) IsAssetAllowed(ctx context.Context, asset string) (bool, error) {
	return m.allowed[asset], nil
}

func (m *mockRepository) ListAllowedAssets(ctx context.Context) ([]string, error) {
	assets := make([]string, 0, len(m.allowed))
	for a := range m.allowed {
		assets = append(assets, a)
	}
	return assets, nil
}

func (m *mockRepository) ReplaceAllocation(ctx context.Context, employeeID int64, lines []AllocationLine, changedAt time.Time) error {
	m.allocations[employeeID] = append([]AllocationLine(nil), lines...)
	if e, ok := m.employees[employeeID]; ok {
		at := changedAt
		e.AllocationChangedAt = &at
	}
	return nil
}

func (m *mockRepository) GetAllocation(ctx context.Context, employeeID int64) ([]AllocationLine, error) {
	return append([]AllocationLine(nil), m.allocations[employeeID]...), nil
}

// WithTx snapshots mutable state and restores it when fn fails, mirroring a
// database rollback.
func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if m.txError != nil {
		return m.txError
	}
	employees := make(map[int64]*Employee, len(m.employees))
	for id, e := range m.employees {
		cp := *e
		cp.Salary = new(big.Int).Set(e.Salary)
		employees[id] = &cp
	}
	allocations := make(map[int64][]AllocationLine, len(m.allocations))
	for id, lines := range m.allocations {
		allocations[id] = append([]AllocationLine(nil), lines...)
	}
	balances := make(map[string]*big.Int, len(m.balances))
	for asset, b := range m.balances {
		balances[asset] = new(big.Int).Set(b)
	}
	debits := len(m.debits)

	if err := fn(ctx, &mockTxRepo{mock: m}); err != nil {
		m.employees = employees
		m.allocations = allocations
		m.balances = balances
		m.debits = m.debits[:debits]
		return err
	}
	return nil
}

type mockTxRepo struct {
	mock *mockRepository
}

func (t *mockTxRepo) GetEmployeeForUpdate(ctx context.Context, id int64) (Employee, error) {
	return t.mock.GetEmployee(ctx, id)
}

func (t *mockTxRepo) GetAllocation(ctx context.Context, employeeID int64) ([]AllocationLine, error) {
	return t.mock.GetAllocation(ctx, employeeID)
}

func (t *mockTxRepo) AdvanceWatermark(ctx context.Context, id int64, to time.Time) error {
	e, ok := t.mock.employees[id]
	if !ok {
		return ErrUnknownEmployee
	}
	if to.After(e.LastSettledAt) {
		e.LastSettledAt = to
	}
	return nil
}

func (t *mockTxRepo) TombstoneEmployee(ctx context.Context, id int64) error {
	e, ok := t.mock.employees[id]
	if !ok {
		return ErrUnknownEmployee
	}
	e.Active = false
	e.Account = ""
	e.Name = ""
	delete(t.mock.allocations, id)
	return nil
}

func (t *mockTxRepo) DebitTreasury(ctx context.Context, asset string, amount *big.Int, recipient, memo string) error {
	if t.mock.debitError != nil {
		return t.mock.debitError
	}
	if balance, ok := t.mock.balances[asset]; ok {
		if balance.Cmp(amount) < 0 {
			return treasury.ErrInsufficientFunds
		}
		balance.Sub(balance, amount)
	}
	t.mock.debits = append(t.mock.debits, debitRecord{
		asset:     asset,
		amount:    new(big.Int).Set(amount),
		recipient: recipient,
		memo:      memo,
	})
	return nil
}

// ============================================================================
// FAKES AND FIXTURES
// ============================================================================

type fakeGateway struct {
	quotes map[string]rates.Quote
	err    error
}

func (g *fakeGateway) Rate(ctx context.Context, base, quote string, at time.Time) (rates.Quote, error) {
	if g.err != nil {
		return rates.Quote{}, g.err
	}
	q, ok := g.quotes[quote]
	if !ok {
		return rates.Quote{}, rates.ErrRateUnavailable
	}
	return q, nil
}

type recordingAudit struct {
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	service *Service
	repo    *mockRepository
	gateway *fakeGateway
	audit   *recordingAudit
	redis   *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := newMockRepository()
	gateway := &fakeGateway{quotes: make(map[string]rates.Quote)}
	audit := &recordingAudit{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	locker := shared.NewLocker(client, 30*time.Second)

	service := NewService(repo, gateway, locker, audit, observability.NewMetrics(), logger, 0)
	service.WithNow(func() time.Time { return testNow })

	return &fixture{service: service, repo: repo, gateway: gateway, audit: audit, redis: mr}
}

func (f *fixture) initialize(t *testing.T) {
	t.Helper()
	err := f.service.Initialize(context.Background(), "treasury-main", "USD", "http://feed.local/rates", 24*time.Hour)
	require.NoError(t, err)
}

func (f *fixture) allowAssets(t *testing.T, assets ...string) {
	t.Helper()
	for _, asset := range assets {
		require.NoError(t, f.service.AddAllowedAsset(context.Background(), asset))
	}
}

func (f *fixture) addEmployee(t *testing.T, account string, annualUnits int64, start time.Time) int64 {
	t.Helper()
	id, err := f.service.AddEmployee(context.Background(), account, amount(annualUnits), "Test Employee", &start)
	require.NoError(t, err)
	return id
}

func (f *fixture) freshQuote(asset string, value *big.Int) {
	f.gateway.quotes[asset] = rates.Quote{Value: value, Timestamp: testNow.Add(-time.Minute)}
}

// ============================================================================
// INITIALIZATION
// ============================================================================

func TestInitializeOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.service.Initialize(ctx, "treasury-main", "USD", "http://feed.local/rates", time.Hour))

	err := f.service.Initialize(ctx, "other", "USD", "http://feed.local/rates", time.Hour)
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
}

func TestInitializeValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.service.Initialize(ctx, "", "USD", "http://feed.local", time.Hour), ErrInvalidTreasury)
	assert.ErrorIs(t, f.service.Initialize(ctx, "treasury-main", "USD", "", time.Hour), ErrInvalidRateFeed)
	assert.ErrorIs(t, f.service.Initialize(ctx, "treasury-main", "USD", "http://feed.local", 0), ErrZeroStaleness)
}

func TestOperationsRequireInitialization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.AddEmployee(ctx, "0xabc", amount(100_000), "", nil)
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, f.service.AddAllowedAsset(ctx, "TOKA"), ErrNotInitialized)
	assert.ErrorIs(t, f.service.SetStalenessBound(ctx, time.Hour), ErrNotInitialized)
}

func TestSetStalenessBoundRejectsZero(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)

	assert.ErrorIs(t, f.service.SetStalenessBound(context.Background(), 0), ErrZeroStaleness)
}

func TestAddAllowedAssetDuplicate(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)
	ctx := context.Background()

	require.NoError(t, f.service.AddAllowedAsset(ctx, "TOKA"))
	assert.ErrorIs(t, f.service.AddAllowedAsset(ctx, "TOKA"), ErrDuplicateAsset)
}

// ============================================================================
// EMPLOYEE REGISTRY
// ============================================================================

func TestAddEmployeeNormalizesSalary(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)

	id := f.addEmployee(t, "0xaaa1", 100_000, testNow.Add(-time.Hour))

	emp, err := f.service.GetEmployee(context.Background(), id)
	require.NoError(t, err)
	rem := new(big.Int).Rem(emp.Salary, big.NewInt(SecondsPerYear))
	assert.Zero(t, rem.Sign(), "stored salary accrues an integer amount per second")
}

func TestAddEmployeeDuplicateAccount(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)
	f.addEmployee(t, "0xaaa1", 100_000, testNow.Add(-time.Hour))

	_, err := f.service.AddEmployee(context.Background(), "0xaaa1", amount(50_000), "", nil)
	assert.ErrorIs(t, err, ErrDuplicateAccount)
}

func TestAddEmployeeInvalidInput(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)
	ctx := context.Background()

	_, err := f.service.AddEmployee(ctx, "", amount(100_000), "", nil)
	assert.ErrorIs(t, err, ErrInvalidAccount)

	_, err = f.service.AddEmployee(ctx, "0xaaa1", nil, "", nil)
	assert.ErrorIs(t, err, ErrInvalidSalary)

	_, err = f.service.AddEmployee(ctx, "0xaaa1", big.NewInt(0), "", nil)
	assert.ErrorIs(t, err, ErrInvalidSalary)
}

func TestGetEmployeeUnknownReturnsSentinel(t *testing.T) {
	f := newFixture(t)

	emp, err := f.service.GetEmployee(context.Background(), 404)
	require.NoError(t, err)
	assert.True(t, emp.Sentinel())
	assert.Equal(t, int64(404), emp.ID)
	assert.Zero(t, emp.Salary.Sign())
}

func TestSetSalaryUnknownEmployee(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)

	err := f.service.SetSalary(context.Background(), 404, amount(50_000))
	assert.ErrorIs(t, err, ErrUnknownEmployee)
}

func TestChangeAccount(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)
	id := f.addEmployee(t, "0xaaa1", 100_000, testNow.Add(-time.Hour))
	ctx := context.Background()

	require.NoError(t, f.service.ChangeAccount(ctx, "0xaaa1", "0xbbb2"))

	emp, err := f.service.GetEmployee(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "0xbbb2", emp.Account)

	// The old identity no longer resolves.
	_, err = f.service.GetEmployeeByAccount(ctx, "0xaaa1")
	assert.ErrorIs(t, err, ErrUnknownEmployee)
}

func TestChangeAccountTakenByAnother(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)
	f.addEmployee(t, "0xaaa1", 100_000, testNow.Add(-time.Hour))
	f.addEmployee(t, "0xbbb2", 100_000, testNow.Add(-time.Hour))

	err := f.service.ChangeAccount(context.Background(), "0xaaa1", "0xbbb2")
	assert.ErrorIs(t, err, ErrDuplicateAccount)
}

func TestChangeAccountNonEmployee(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)

	err := f.service.ChangeAccount(context.Background(), "0xnobody", "0xbbb2")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

// ============================================================================
// ALLOCATION TABLE
// ============================================================================

func TestSetAllocation(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)
	f.allowAssets(t, "TOKA", "TOKB", "TOKC")
	id := f.addEmployee(t, "0xaaa1", 100_000, testNow.Add(-time.Hour))
	ctx := context.Background()

	err := f.service.SetAllocation(ctx, id, "0xaaa1", []string{"TOKA", "TOKB", "TOKC"}, []int64{10, 20, 70})
	require.NoError(t, err)

	pct, err := f.service.GetAllocation(ctx, id, "TOKB")
	require.NoError(t, err)
	assert.Equal(t, int64(20), pct)

	// Unallocated assets report zero rather than failing.
	pct, err = f.service.GetAllocation(ctx, id, "TOKX")
	require.NoError(t, err)
	assert.Zero(t, pct)
}

func TestSetAllocationRejectsBadTotals(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)
	f.allowAssets(t, "TOKA", "TOKB", "TOKC")
	id := f.addEmployee(t, "0xaaa1", 100_000, testNow.Add(-time.Hour))
	ctx := context.Background()

	cases := []struct {
		name     string
		assets   []string
		percents []int64
		want     error
	}{
		{"over 100", []string{"TOKA", "TOKB", "TOKC"}, []int64{10, 20, 80}, ErrInvalidTotal},
		{"under 100", []string{"TOKA", "TOKB"}, []int64{10, 20}, ErrInvalidTotal},
		{"single over 100", []string{"TOKA"}, []int64{101}, ErrInvalidTotal},
		{"negative share", []string{"TOKA", "TOKB"}, []int64{-10, 110}, ErrInvalidTotal},
		{"duplicate asset", []string{"TOKA", "TOKA"}, []int64{50, 50}, ErrInvalidTotal},
		{"length mismatch", []string{"TOKA", "TOKB"}, []int64{100}, ErrLengthMismatch},
		{"unknown asset", []string{"TOKX"}, []int64{100}, ErrAssetNotAllowed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := f.service.SetAllocation(ctx, id, "0xaaa1", tc.assets, tc.percents)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestSetAllocationWrongCaller(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)
	f.allowAssets(t, "TOKA")
	id := f.addEmployee(t, "0xaaa1", 100_000, testNow.Add(-time.Hour))

	err := f.service.SetAllocation(context.Background(), id, "0xother", []string{"TOKA"}, []int64{100})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestSetAllocationCooldown(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)
	f.allowAssets(t, "TOKA", "TOKB")
	id := f.addEmployee(t, "0xaaa1", 100_000, testNow.Add(-time.Hour))
	f.service.allocationCooldown = time.Hour
	ctx := context.Background()

	require.NoError(t, f.service.SetAllocation(ctx, id, "0xaaa1", []string{"TOKA"}, []int64{100}))

	err := f.service.SetAllocation(ctx, id, "0xaaa1", []string{"TOKB"}, []int64{100})
	assert.ErrorIs(t, err, ErrAllocationCooldown)

	// Past the cooldown the change goes through.
	f.service.WithNow(func() time.Time { return testNow.Add(2 * time.Hour) })
	require.NoError(t, f.service.SetAllocation(ctx, id, "0xaaa1", []string{"TOKB"}, []int64{100}))
}

func TestAuditTrailRecorded(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)
	f.allowAssets(t, "TOKA")
	f.addEmployee(t, "0xaaa1", 100_000, testNow.Add(-time.Hour))

	var actions []string
	for _, l := range f.audit.logs {
		actions = append(actions, l.Action)
	}
	assert.Contains(t, actions, "payroll.initialize")
	assert.Contains(t, actions, "asset.allow")
	assert.Contains(t, actions, "employee.add")
}
