package payroll

import (
	"math/big"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var amountPrinter = message.NewPrinter(language.English)

// formatAmount renders a base-unit amount with digit grouping for audit
// metadata and logs. Amounts beyond int64 range fall back to the plain
// decimal string.
func formatAmount(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	if amount.IsInt64() {
		return amountPrinter.Sprintf("%d", amount.Int64())
	}
	return amount.String()
}
