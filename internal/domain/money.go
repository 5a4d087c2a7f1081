package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// RoundCents rounds v half away from zero to two decimal places.
func RoundCents(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// ParseAmount parses a money string as written in exports and statements.
// Currency symbols, thousands separators and surrounding quotes are ignored;
// a value wrapped in parentheses is negative.
func ParseAmount(s string) (decimal.Decimal, error) {
	clean := strings.TrimSpace(strings.Trim(strings.TrimSpace(s), `"`))
	negative := false
	if strings.HasPrefix(clean, "(") && strings.HasSuffix(clean, ")") {
		negative = true
		clean = clean[1 : len(clean)-1]
	}
	clean = strings.NewReplacer("$", "", ",", "", " ", "").Replace(clean)
	if clean == "" {
		return decimal.Zero, fmt.Errorf("amount is empty")
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// Sum adds amounts exactly and returns the total rounded to cents.
func Sum(amounts ...float64) float64 {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(decimal.NewFromFloat(a))
	}
	return total.Round(2).InexactFloat64()
}
