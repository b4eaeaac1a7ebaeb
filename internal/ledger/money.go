// Package ledger holds the arithmetic and error vocabulary shared by the
// valuation, closure and funding engines.
package ledger

import (
	"github.com/shopspring/decimal"
)

// AmountScale matches the NUMERIC(20, 8) columns of the ledger schema.
const AmountScale int32 = 8

// PercentScale matches the NUMERIC(12, 4) percent columns.
const PercentScale int32 = 4

var hundred = decimal.NewFromInt(100)

// Round normalizes an amount to the stored scale.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(AmountScale)
}

// FluctuationPercent returns (next - previous) / previous * 100, or 0 when previous is 0.
func FluctuationPercent(previous, next decimal.Decimal) decimal.Decimal {
	if previous.IsZero() {
		return decimal.Zero
	}
	return next.Sub(previous).Div(previous).Mul(hundred).Round(PercentScale)
}

// Share returns part / total, or 0 when total is 0.
func Share(part, total decimal.Decimal) decimal.Decimal {
	if total.IsZero() {
		return decimal.Zero
	}
	return part.Div(total)
}

// SharePercent returns part / total * 100, or 0 when total is 0.
func SharePercent(part, total decimal.Decimal) decimal.Decimal {
	return Share(part, total).Mul(hundred).Round(PercentScale)
}

// Sum adds amounts.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
