package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MinorUnitExponent is the number of decimal places between the stored integer
// amount and the display amount (cents).
const MinorUnitExponent = 2

// FormatAmount renders a minor-unit amount as "KES 1,500.00".
func FormatAmount(amount int64, currency string) string {
	value := decimal.New(amount, -MinorUnitExponent)
	fixed := value.Abs().StringFixed(MinorUnitExponent)

	whole, frac, _ := strings.Cut(fixed, ".")
	var grouped strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(r)
	}

	sign := ""
	if value.IsNegative() {
		sign = "-"
	}
	out := sign + grouped.String() + "." + frac
	if currency = strings.TrimSpace(currency); currency != "" {
		return currency + " " + out
	}
	return out
}

// Percentage returns part/total*100 rounded to four decimal places, or zero when
// total is not positive.
func Percentage(part, total int64) decimal.Decimal {
	if total <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(part).
		Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromInt(total), 4)
}
