package ledger

import (
	"github.com/shopspring/decimal"
)

// DefaultTolerance is the rounding tolerance of the balance invariant.
var DefaultTolerance = decimal.New(1, -2)

// AmountEqual checks if two amounts are equal within tolerance
func AmountEqual(a, b decimal.Decimal, tolerance decimal.Decimal) bool {
	diff := a.Sub(b).Abs()
	return diff.LessThanOrEqual(tolerance)
}

// FormatAmount renders an amount with two decimals for messages.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// SumAmounts returns the sum of the absolute amounts of lines.
func SumAmounts(lines []*Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Amount())
	}
	return total
}

// BalanceOf returns total debit and total credit of lines.
func BalanceOf(lines []*Line) (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, l := range lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	return debit, credit
}
