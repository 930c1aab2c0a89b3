// Package core holds the billing domain: money handling, the markup policy,
// and regex-based fact extraction from bill text.
package core

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// MarkupPercent is the flat surcharge applied to every consolidated subtotal.
const MarkupPercent = 10

// Money is a currency amount in integer minor units (pence).
type Money struct {
	Cents int64
}

// ParseDecimalToCents converts a decimal string to cents, half-up rounding on
// the third decimal place. Thousands-separator commas are stripped first;
// there is no support for decimal commas. Negative amounts are rejected.
//
// Examples:
//
//	ParseDecimalToCents("120.00")   -> 12000, nil
//	ParseDecimalToCents("1,234.5")  -> 123450, nil
//	ParseDecimalToCents("12.345")   -> 1234, nil (rounds down)
//	ParseDecimalToCents("12.346")   -> 1235, nil (rounds up)
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" || strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart + fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64 {
		return 0, ErrInvalidAmount
	}
	var fracCents int64
	if len(fracPart) > 0 {
		fracCents = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			fracCents += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}
	return iv*100 + fracCents, nil
}

// ApplyMarkup implements the cost policy: markup = round(subtotal * 10%, 2dp)
// half-up, total = subtotal + markup. The markup is rounded on its own before
// the addition; the sum of two integer-cent values needs no further rounding,
// so the two-step rounding order the policy requires holds exactly.
//
// A nil subtotal means "unknown" and propagates: both results are nil, never
// a computed zero charge.
func ApplyMarkup(subtotal *Money) (markup, total *Money) {
	if subtotal == nil {
		return nil, nil
	}
	m := Money{Cents: (subtotal.Cents*MarkupPercent + 50) / 100}
	t := Money{Cents: subtotal.Cents + m.Cents}
	return &m, &t
}

// SubtotalFromRate computes a subtotal as usage x rate-per-unit, half-up
// rounded to whole cents. Used only when the document carried no direct
// currency amount.
func SubtotalFromRate(usage, rate decimal.Decimal) Money {
	cents := usage.Mul(rate).Shift(2).Round(0)
	return Money{Cents: cents.IntPart()}
}

// String formats the amount with two decimal places, e.g. "132.00".
func (m Money) String() string {
	neg := ""
	c := m.Cents
	if c < 0 {
		neg = "-"
		c = -c
	}
	return neg + strconv.FormatInt(c/100, 10) + "." + pad2(c%100)
}

func pad2(n int64) string {
	if n < 10 {
		return "0" + strconv.FormatInt(n, 10)
	}
	return strconv.FormatInt(n, 10)
}
