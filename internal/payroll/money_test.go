package payroll

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paystream-io/paystream/internal/rates"
)

func amount(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), rates.Scale)
}

func TestNormalizeAnnualSalary(t *testing.T) {
	annual := amount(100_000)
	normalized := NormalizeAnnualSalary(annual)

	// Divisible by the year length, so per-second accrual is exact.
	rem := new(big.Int).Rem(normalized, big.NewInt(SecondsPerYear))
	assert.Zero(t, rem.Sign())

	// Truncation only discards, never adds.
	assert.True(t, normalized.Cmp(annual) <= 0)
	diff := new(big.Int).Sub(annual, normalized)
	assert.True(t, diff.Cmp(big.NewInt(SecondsPerYear)) < 0)

	// Re-normalizing is a no-op.
	assert.Zero(t, NormalizeAnnualSalary(normalized).Cmp(normalized))
}

func TestNormalizeAnnualSalaryBelowOnePerSecond(t *testing.T) {
	small := big.NewInt(SecondsPerYear - 1)
	assert.Zero(t, NormalizeAnnualSalary(small).Sign())
}

func TestOwedAmountFullYear(t *testing.T) {
	salary := NormalizeAnnualSalary(amount(100_000))
	identity := new(big.Int).Set(rates.Scale)

	owed := OwedAmount(salary, identity, 100, SecondsPerYear)
	require.Zero(t, owed.Cmp(salary), "a full year at rate 1.0 pays exactly the truncated salary")
}

func TestOwedAmountSharesSum(t *testing.T) {
	salary := NormalizeAnnualSalary(amount(120_000))
	rate := new(big.Int).Mul(big.NewInt(2), rates.Scale)
	const elapsed = int64(3600)

	full := OwedAmount(salary, rate, 100, elapsed)
	a := OwedAmount(salary, rate, 40, elapsed)
	b := OwedAmount(salary, rate, 60, elapsed)

	sum := new(big.Int).Add(a, b)
	assert.True(t, sum.Cmp(full) <= 0, "split shares never exceed the whole")
	assert.Positive(t, a.Sign())
	assert.Positive(t, b.Sign())
}

func TestOwedAmountDeterministic(t *testing.T) {
	salary := NormalizeAnnualSalary(amount(100_000))
	rate := new(big.Int).Set(rates.Scale)

	first := OwedAmount(salary, rate, 100, 1234)
	second := OwedAmount(salary, rate, 100, 1234)
	assert.Zero(t, first.Cmp(second))
}

func TestOwedAmountRoundsToZero(t *testing.T) {
	// A dust rate can round a share down to nothing.
	salary := NormalizeAnnualSalary(amount(100_000))
	owed := OwedAmount(salary, big.NewInt(1), 1, 1)
	assert.Zero(t, owed.Sign())
}

func TestOwedAmountZeroElapsed(t *testing.T) {
	salary := NormalizeAnnualSalary(amount(100_000))
	owed := OwedAmount(salary, new(big.Int).Set(rates.Scale), 100, 0)
	assert.Zero(t, owed.Sign())
}
