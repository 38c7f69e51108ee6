// Package money converts between integer minor units and decimal amounts.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const centsExp = 2

var hundred = decimal.NewFromInt(100)

// FromCents returns the decimal major-unit value of cents.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -centsExp)
}

// ToCents converts a decimal major-unit amount to cents, rounding half away from zero.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// ParseCents parses a display amount such as "24.99" into cents. More than two
// fractional digits is rejected rather than rounded.
func ParseCents(value string) (int64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, fmt.Errorf("amount is required")
	}
	amount, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	if !amount.Equal(amount.Truncate(centsExp)) {
		return 0, fmt.Errorf("amount %q has more than %d decimal places", value, centsExp)
	}
	return ToCents(amount), nil
}

// Format renders cents as a fixed two-decimal string.
func Format(cents int64) string {
	return FromCents(cents).StringFixed(centsExp)
}

// FormatWithCurrency renders cents with an upper-case ISO currency suffix.
func FormatWithCurrency(cents int64, currency string) string {
	return Format(cents) + " " + strings.ToUpper(currency)
}

// ApplyRate returns round(cents * rate) in cents.
func ApplyRate(cents int64, rate decimal.Decimal) int64 {
	return FromCents(cents).Mul(rate).Round(centsExp).Mul(hundred).IntPart()
}
