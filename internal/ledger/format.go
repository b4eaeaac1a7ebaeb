package ledger

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// FormatMoney renders amount in the display format of currency, rounded to
// the currency's minor unit.
func FormatMoney(amount decimal.Decimal, currency string) string {
	// the constructor never returns a nil currency, unknown codes included
	cur := money.New(0, currency).Currency()
	minor := amount.Shift(int32(cur.Fraction)).Round(0)
	return cur.Formatter().Format(minor.IntPart())
}
