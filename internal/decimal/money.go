package decimal

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Zero is decimal zero
var Zero = decimal.Zero

var hundred = decimal.NewFromInt(100)

// FromString parses decimal from string
func FromString(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

// MustFromString parses decimal from string, panics on error
func MustFromString(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// ParseAmount parses a user-entered amount.
// Accepts "," or "." as decimal separator and ignores spaces. When both
// appear, the last one is the decimal separator and the other groups thousands.
// Blank or unparsable input yields zero.
func ParseAmount(s string) decimal.Decimal {
	group := rune(-1)
	if strings.ContainsRune(s, '.') && strings.ContainsRune(s, ',') {
		group = '.'
		if strings.LastIndex(s, ".") > strings.LastIndex(s, ",") {
			group = ','
		}
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\t', group:
			return -1
		case ',':
			return '.'
		}
		return r
	}, s)
	if s == "" {
		return Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero
	}
	return d
}

// Mul multiplies two decimals, rounds to 2 places
func Mul(a, b decimal.Decimal) decimal.Decimal {
	return a.Mul(b).Round(2)
}

// RatePercent returns the numeric percentage of a VAT rate code.
// Exempt and out-of-scope codes ("zw", "np", "oo") report false.
func RatePercent(code string) (decimal.Decimal, bool) {
	code = strings.TrimSuffix(strings.TrimSpace(code), "%")
	if code == "" {
		return Zero, false
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(code, ",", "."))
	if err != nil {
		return Zero, false
	}
	return d, true
}

// CalculateVAT computes VAT amount: amount * (rate/100)
// Rounds to 2 decimals (grosze), half away from zero
func CalculateVAT(amount decimal.Decimal, ratePercent decimal.Decimal) decimal.Decimal {
	if ratePercent.IsZero() {
		return Zero
	}
	return amount.Mul(ratePercent).Div(hundred).Round(2)
}

// VATForCode computes VAT for a rate code; non-numeric codes carry no VAT
func VATForCode(amount decimal.Decimal, code string) decimal.Decimal {
	rate, ok := RatePercent(code)
	if !ok {
		return Zero
	}
	return CalculateVAT(amount, rate)
}

// Sum sums a slice of decimals
func Sum(values []decimal.Decimal) decimal.Decimal {
	result := Zero
	for _, v := range values {
		result = result.Add(v)
	}
	return result
}

// Format renders d with exactly two decimals and "." as separator
func Format(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// FormatQuantity renders a quantity without trailing zeros, keeping up to 6 decimals
func FormatQuantity(d decimal.Decimal) string {
	return d.Round(6).String()
}
