package payroll

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paystream-io/paystream/internal/rates"
	"github.com/paystream-io/paystream/internal/shared"
	"github.com/paystream-io/paystream/internal/treasury"
)

func newSettlementFixture(t *testing.T) (*fixture, int64) {
	t.Helper()
	f := newFixture(t)
	f.initialize(t)
	f.allowAssets(t, "TOKA", "TOKB")
	id := f.addEmployee(t, "0xaaa1", 100_000, testNow.Add(-time.Hour))
	require.NoError(t, f.service.SetAllocation(context.Background(), id, "0xaaa1", []string{"TOKA", "TOKB"}, []int64{40, 60}))
	f.freshQuote("TOKA", new(big.Int).Set(rates.Scale))
	f.freshQuote("TOKB", new(big.Int).Mul(big.NewInt(2), rates.Scale))
	return f, id
}

func TestSettlePaysAccruedSalary(t *testing.T) {
	f, id := newSettlementFixture(t)
	ctx := context.Background()

	result, err := f.service.Settle(ctx, id, "0xaaa1")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, result.Elapsed)
	require.Len(t, result.Transfers, 2)

	emp, err := f.service.GetEmployee(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, testNow, emp.LastSettledAt, "watermark advances to settlement time")

	salary := emp.Salary
	wantA := OwedAmount(salary, rates.Scale, 40, 3600)
	wantB := OwedAmount(salary, new(big.Int).Mul(big.NewInt(2), rates.Scale), 60, 3600)
	require.Len(t, f.repo.debits, 2)
	assert.Zero(t, f.repo.debits[0].amount.Cmp(wantA))
	assert.Zero(t, f.repo.debits[1].amount.Cmp(wantB))
	assert.Equal(t, "0xaaa1", f.repo.debits[0].recipient)
	assert.Equal(t, "Payroll", f.repo.debits[0].memo)
}

func TestSettleTwiceOwesNothing(t *testing.T) {
	f, id := newSettlementFixture(t)
	ctx := context.Background()

	_, err := f.service.Settle(ctx, id, "0xaaa1")
	require.NoError(t, err)

	_, err = f.service.Settle(ctx, id, "0xaaa1")
	assert.ErrorIs(t, err, ErrNothingOwed)
	assert.Len(t, f.repo.debits, 2, "no additional transfers on the repeat call")
}

func TestSettleWrongCaller(t *testing.T) {
	f, id := newSettlementFixture(t)

	_, err := f.service.Settle(context.Background(), id, "0xother")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Empty(t, f.repo.debits)
}

func TestSettleByAccountNonEmployee(t *testing.T) {
	f, _ := newSettlementFixture(t)

	_, err := f.service.SettleByAccount(context.Background(), "0xnobody")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.service.SettleByAccount(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestSettleWithoutAllocation(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)
	id := f.addEmployee(t, "0xaaa1", 100_000, testNow.Add(-time.Hour))

	_, err := f.service.Settle(context.Background(), id, "0xaaa1")
	assert.ErrorIs(t, err, ErrNoAllocation)
}

func TestSettleStaleRate(t *testing.T) {
	f, id := newSettlementFixture(t)
	f.gateway.quotes["TOKA"] = rates.Quote{
		Value:     new(big.Int).Set(rates.Scale),
		Timestamp: testNow.Add(-25 * time.Hour),
	}

	_, err := f.service.Settle(context.Background(), id, "0xaaa1")
	assert.ErrorIs(t, err, ErrStaleRate)
	assert.Empty(t, f.repo.debits, "stale quote rolls back the whole settlement")
}

func TestSettleZeroRate(t *testing.T) {
	f, id := newSettlementFixture(t)
	f.freshQuote("TOKA", big.NewInt(0))

	_, err := f.service.Settle(context.Background(), id, "0xaaa1")
	assert.ErrorIs(t, err, ErrZeroRate)
	assert.Empty(t, f.repo.debits)
}

func TestSettleRateUnavailable(t *testing.T) {
	f, id := newSettlementFixture(t)
	delete(f.gateway.quotes, "TOKB")

	_, err := f.service.Settle(context.Background(), id, "0xaaa1")
	assert.ErrorIs(t, err, rates.ErrRateUnavailable)
	assert.Empty(t, f.repo.debits, "partial transfers roll back with the failing one")
}

func TestSettleInsufficientFundsRollsBack(t *testing.T) {
	f, id := newSettlementFixture(t)
	// Fund TOKA fully but leave TOKB short so the second transfer fails.
	f.repo.balances["TOKA"] = amount(1_000_000)
	f.repo.balances["TOKB"] = big.NewInt(1)
	before := new(big.Int).Set(f.repo.balances["TOKA"])

	_, err := f.service.Settle(context.Background(), id, "0xaaa1")
	assert.ErrorIs(t, err, treasury.ErrInsufficientFunds)

	assert.Zero(t, f.repo.balances["TOKA"].Cmp(before), "the successful debit is rolled back too")
	assert.Empty(t, f.repo.debits)

	emp, err := f.service.GetEmployee(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(-time.Hour), emp.LastSettledAt, "watermark untouched after rollback")
}

func TestSettleSkipsZeroShares(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)
	f.allowAssets(t, "TOKA", "TOKB")
	id := f.addEmployee(t, "0xaaa1", 100_000, testNow.Add(-time.Hour))
	require.NoError(t, f.service.SetAllocation(context.Background(), id, "0xaaa1", []string{"TOKA", "TOKB"}, []int64{100, 0}))
	f.freshQuote("TOKA", new(big.Int).Set(rates.Scale))
	// No TOKB quote on purpose; a zero share must never query the gateway.

	result, err := f.service.Settle(context.Background(), id, "0xaaa1")
	require.NoError(t, err)
	assert.Len(t, result.Transfers, 1)
	assert.Equal(t, "TOKA", result.Transfers[0].Asset)
}

func TestSettleWhileLockHeld(t *testing.T) {
	f, id := newSettlementFixture(t)
	require.NoError(t, f.redis.Set(shared.SettlementLockKey(id), "other-holder"))

	_, err := f.service.Settle(context.Background(), id, "0xaaa1")
	assert.ErrorIs(t, err, ErrSettlementInProgress)
}

func TestRemoveEmployeeSettlesAndTombstones(t *testing.T) {
	f, id := newSettlementFixture(t)
	ctx := context.Background()

	result, err := f.service.RemoveEmployee(ctx, id)
	require.NoError(t, err)
	assert.Len(t, result.Transfers, 2, "accrued salary is paid out on removal")

	emp, err := f.service.GetEmployee(ctx, id)
	require.NoError(t, err)
	assert.True(t, emp.Sentinel())

	// The account is free for a new hire and the old id is never reused.
	newID := f.addEmployee(t, "0xaaa1", 100_000, testNow)
	assert.Greater(t, newID, id)
}

func TestRemoveEmployeeNothingOwed(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)
	id := f.addEmployee(t, "0xaaa1", 100_000, testNow)

	// No accrual and no allocation; removal still succeeds.
	result, err := f.service.RemoveEmployee(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, result.Transfers)

	emp, err := f.service.GetEmployee(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, emp.Sentinel())
}

func TestRemoveEmployeeUnknown(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)

	_, err := f.service.RemoveEmployee(context.Background(), 404)
	assert.ErrorIs(t, err, ErrUnknownEmployee)
}

func TestSettleRemovedEmployee(t *testing.T) {
	f, id := newSettlementFixture(t)
	ctx := context.Background()

	_, err := f.service.RemoveEmployee(ctx, id)
	require.NoError(t, err)

	_, err = f.service.Settle(ctx, id, "0xaaa1")
	assert.ErrorIs(t, err, ErrUnknownEmployee)
}
