package donation

import "github.com/shopspring/decimal"

// DefaultScale is the number of minor units per whole unit (drops per XRP).
const DefaultScale int64 = 1_000_000

// ToMinor converts amount to minor units, truncating anything below one unit.
func ToMinor(amount decimal.Decimal, scale int64) int64 {
	return amount.Mul(decimal.NewFromInt(scale)).Floor().IntPart()
}

// ExactMinor converts amount to minor units and reports whether the
// conversion was exact, with no fraction of a unit left over.
func ExactMinor(amount decimal.Decimal, scale int64) (int64, bool) {
	m := amount.Mul(decimal.NewFromInt(scale))
	return m.IntPart(), m.IsInteger()
}

// FromMinor converts minor units back to a whole-unit amount.
func FromMinor(minor, scale int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Div(decimal.NewFromInt(scale))
}

// Split returns each beneficiary's share of minor units: floor(minor/n),
// or 0 when there is less than one unit per beneficiary.
func Split(minor, n int64) int64 {
	if n <= 0 || minor < n {
		return 0
	}
	return minor / n
}
