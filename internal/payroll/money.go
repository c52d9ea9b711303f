package payroll

import (
	"math/big"

	"github.com/paystream-io/paystream/internal/rates"
)

// SecondsPerYear is the accrual year length (365.25 days).
const SecondsPerYear int64 = 31557600

var (
	secondsPerYear = big.NewInt(SecondsPerYear)
	oneHundred     = big.NewInt(100)
)

// NormalizeAnnualSalary truncates an annual salary to an exact
// integer-per-second accrual rate: floor(annual / SecondsPerYear) *
// SecondsPerYear. The discarded remainder is a deliberate, bounded
// underpayment that keeps long-running accrual free of fractional drift.
func NormalizeAnnualSalary(annual *big.Int) *big.Int {
	perSecond := new(big.Int).Quo(annual, secondsPerYear)
	return perSecond.Mul(perSecond, secondsPerYear)
}

// OwedAmount computes the payout in an asset's native unit for a settlement:
//
//	floor( floor(salary / SecondsPerYear) * rate * percent * elapsed / 100 / rates.Scale )
//
// salary is the stored (already truncated) annual figure, rate a 1e18
// fixed-point quote against the denomination asset. Dividing by
// SecondsPerYear before multiplying by elapsed keeps the result consistent
// with the truncation already baked into the stored salary. Intermediates
// are arbitrary precision, so no operand range can overflow.
func OwedAmount(salary, rate *big.Int, percent, elapsedSeconds int64) *big.Int {
	owed := new(big.Int).Quo(salary, secondsPerYear)
	owed.Mul(owed, rate)
	owed.Mul(owed, big.NewInt(percent))
	owed.Mul(owed, big.NewInt(elapsedSeconds))
	owed.Quo(owed, oneHundred)
	owed.Quo(owed, rates.Scale)
	return owed
}
