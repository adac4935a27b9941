package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// italianAmount matches an amount written the Italian way: dot thousands
// separators and a decimal comma.
var italianAmount = regexp.MustCompile(`\d{1,3}(?:\.\d{3})+(?:,\d+)?|\d+(?:,\d+)?`)

// ParsePrice converts a displayed price such as "€ 1.234,56 Tot" to a
// decimal. Dots are thousands separators and the comma is the decimal
// point.
func ParsePrice(s string) (decimal.Decimal, error) {
	cleaned := strings.NewReplacer("€", "", "Tot", "", " ", "").Replace(s)
	cleaned = strings.Join(strings.Fields(cleaned), "")
	if d, err := normalizeAmount(cleaned); err == nil {
		return d, nil
	}

	// Labels around the amount ("Tot. € 12,90 + spedizione").
	if m := italianAmount.FindString(s); m != "" {
		return normalizeAmount(m)
	}
	return decimal.Zero, fmt.Errorf("extract: no price in %q", s)
}

func normalizeAmount(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(s, ".", "")
	s = strings.Replace(s, ",", ".", 1)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("extract: price %q: %w", s, err)
	}
	return d, nil
}
