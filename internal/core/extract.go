package core

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// BillFacts is the best-effort structured record pulled from bill text.
// Every field is independently present-or-absent; a pattern that does not
// match leaves its field zero, never an error.
type BillFacts struct {
	PeriodStart string // raw DD/MM/YYYY, empty when absent
	PeriodEnd   string
	Usage       *decimal.Decimal
	UnitType    string // canonical kWh / m3, empty when absent
	RatePerUnit *decimal.Decimal
	Subtotal    *Money
}

var (
	// Two DD/MM/YYYY dates separated by a dash-like separator. The dates are
	// not validated as calendar dates; 31/02/2024 passes.
	periodPattern = regexp.MustCompile(`(\d{2}/\d{2}/\d{4})\s*[-–—]\s*(\d{2}/\d{2}/\d{4})`)

	// A decimal number (thousands commas allowed) followed by a unit token.
	usagePattern = regexp.MustCompile(`(?i)(\d[\d,]*(?:\.\d+)?)\s*(kwh|m3)\b`)

	// A currency-prefixed amount. Amounts that turn out to be per-unit rates
	// are skipped by extractCost, not by the pattern.
	costPattern = regexp.MustCompile(`£\s*(\d[\d,]*(?:\.\d+)?)`)

	// A currency-prefixed per-unit rate, e.g. "£0.28/kWh" or "£0.28 per m3".
	ratePattern = regexp.MustCompile(`(?i)£\s*(\d[\d,]*(?:\.\d+)?)\s*(?:/|per\s+)(kwh|m3)\b`)

	// Marks a cost match as a rate when it trails the amount.
	rateSuffixPattern = regexp.MustCompile(`(?i)^\s*(?:/|per\s+)(?:kwh|m3)\b`)
)

var canonicalUnits = map[string]string{
	"kwh": UnitEnergy,
	"m3":  UnitVolume,
}

// ExtractFacts scans free-form document text for billing facts. Only the
// first match of each pattern is used. Extraction never fails: garbled or
// empty text simply yields an empty BillFacts.
func ExtractFacts(text string) BillFacts {
	var facts BillFacts

	if m := periodPattern.FindStringSubmatch(text); m != nil {
		facts.PeriodStart = m[1]
		facts.PeriodEnd = m[2]
	}

	if m := usagePattern.FindStringSubmatch(text); m != nil {
		if u, err := parsePositiveDecimal(m[1]); err == nil {
			facts.Usage = &u
			facts.UnitType = canonicalUnits[strings.ToLower(m[2])]
		}
	}

	facts.Subtotal = extractCost(text)

	if m := ratePattern.FindStringSubmatch(text); m != nil {
		if r, err := parsePositiveDecimal(m[1]); err == nil {
			facts.RatePerUnit = &r
		}
	}

	return facts
}

// extractCost returns the first currency amount that is not a per-unit rate:
// "£120.00" matches, the "£0.28" in "£0.28/kWh" does not.
func extractCost(text string) *Money {
	for _, idx := range costPattern.FindAllStringSubmatchIndex(text, -1) {
		if rateSuffixPattern.MatchString(text[idx[1]:]) {
			continue
		}
		cents, err := ParseDecimalToCents(text[idx[2]:idx[3]])
		if err != nil {
			return nil
		}
		return &Money{Cents: cents}
	}
	return nil
}

func parsePositiveDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
	if err != nil {
		return decimal.Decimal{}, err
	}
	if d.IsNegative() {
		return decimal.Decimal{}, ErrInvalidAmount
	}
	return d, nil
}
