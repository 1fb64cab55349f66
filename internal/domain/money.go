package domain

import (
	"github.com/shopspring/decimal"
)

// Currency is the single marketplace currency. Amounts everywhere are integer
// counts of its minor unit (cents).
const Currency = "LKR"

const minorUnitExponent = -2

// FormatAmount renders a minor-unit amount as a fixed two-decimal string,
// e.g. 560050 -> "5600.50".
func FormatAmount(minor int64) string {
	return decimal.New(minor, minorUnitExponent).StringFixed(2)
}

// ParseAmount converts a decimal string in major units into minor units.
// It rejects values with more precision than the currency supports.
func ParseAmount(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, Invalid("money.parse", "amount is not a number")
	}
	scaled := d.Shift(-minorUnitExponent)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, Invalid("money.parse", "amount has more than two decimal places")
	}
	return scaled.IntPart(), nil
}

// AddAmounts returns a+b. ok is false when the sum does not fit in an int64.
func AddAmounts(a, b int64) (sum int64, ok bool) {
	sum = a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, false
	}
	return sum, true
}

// SumAmounts adds amounts with overflow checking.
func SumAmounts(amounts ...int64) (int64, bool) {
	var total int64
	for _, a := range amounts {
		var ok bool
		if total, ok = AddAmounts(total, a); !ok {
			return 0, false
		}
	}
	return total, true
}
