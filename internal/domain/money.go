package domain

import "github.com/shopspring/decimal"

// Fractional-digit budgets. Crypto quantities carry up to 18 digits,
// USD/EUR monetary values 8, percentages 2.
const (
	QtyDigits   = 18
	MoneyDigits = 8
	PctDigits   = 2
)

// RoundMoney rounds a USD/EUR amount half-up to 8 fractional digits.
// decimal.Round rounds ties away from zero, which matches the half-up
// contract used throughout the money math.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyDigits)
}

// RoundQty rounds a crypto quantity half-up to 18 fractional digits.
func RoundQty(d decimal.Decimal) decimal.Decimal {
	return d.Round(QtyDigits)
}

// RoundPct rounds a percentage half-up to 2 fractional digits.
func RoundPct(d decimal.Decimal) decimal.Decimal {
	return d.Round(PctDigits)
}

// Pct computes part/whole*100 rounded to 2 digits, or zero when the
// denominator is not positive.
func Pct(part, whole decimal.Decimal) decimal.Decimal {
	if !whole.IsPositive() {
		return decimal.Zero
	}
	return RoundPct(part.Div(whole).Mul(decimal.NewFromInt(100)))
}
