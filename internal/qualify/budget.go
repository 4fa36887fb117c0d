package qualify

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// DefaultCurrency is assumed when the text names no currency.
const DefaultCurrency = "AED"

// ErrNoAmount indicates no numeric quantity could be recovered from the
// text. Callers must surface a clarifying question, never a crash.
var ErrNoAmount = errors.New("no numeric amount found")

// ParseError reports a budget expression that could not be parsed.
type ParseError struct {
	Input string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse budget from %q: %v", e.Input, ErrNoAmount)
}

// Unwrap lets errors.Is(err, ErrNoAmount) work on ParseError.
func (e *ParseError) Unwrap() error { return ErrNoAmount }

// Budget is a normalized budget range in whole currency units.
// A single amount ("around 2 million") yields Min == Max.
type Budget struct {
	Min      int64  `json:"min"`
	Max      int64  `json:"max"`
	Currency string `json:"currency"`
}

// amountRe matches a number with optional comma digit groups, decimal
// part, and scale suffix ("1,500,000", "1.2m", "900 k", "2 million").
var amountRe = regexp.MustCompile(`(?i)(\d{1,3}(?:,\d{3})+|\d+(?:\.\d+)?)\s*(k|m|mn|mil|million|thousand)?\b`)

// currency aliases, checked in order; first hit wins.
var currencyAliases = []struct {
	alias string
	code  string
}{
	{"aed", "AED"}, {"dhs", "AED"}, {"dirham", "AED"},
	{"usd", "USD"}, {"dollar", "USD"}, {"$", "USD"},
	{"eur", "EUR"}, {"euro", "EUR"}, {"€", "EUR"},
	{"gbp", "GBP"}, {"pound", "GBP"}, {"£", "GBP"},
	{"sar", "SAR"}, {"riyal", "SAR"},
}

// ParseBudget parses a natural-language budget expression into a numeric
// range and currency code.
//
// Supported shapes include "around 2 million AED", "1.2M to 1.8M",
// "between 900k and 1.1m", "1,500,000". Two amounts form a range (ordered
// min/max); one amount collapses to Min == Max. When no amount is
// recoverable it returns a *ParseError wrapping ErrNoAmount.
func ParseBudget(text string) (Budget, error) {
	lower := strings.ToLower(text)

	matches := amountRe.FindAllStringSubmatch(lower, -1)
	amounts := make([]int64, 0, 2)
	for _, m := range matches {
		v, ok := parseAmount(m[1], m[2])
		if !ok {
			continue
		}
		amounts = append(amounts, v)
		if len(amounts) == 2 {
			break
		}
	}

	if len(amounts) == 0 {
		return Budget{}, &ParseError{Input: text}
	}

	b := Budget{Min: amounts[0], Max: amounts[0], Currency: detectCurrency(lower)}
	if len(amounts) == 2 {
		b.Max = amounts[1]
		if b.Max < b.Min {
			b.Min, b.Max = b.Max, b.Min
		}
	}
	return b, nil
}

// parseAmount converts a matched number plus scale suffix to whole units.
// Bare numbers below 1000 without a suffix are rejected: "2BR" or "60
// days" must not be mistaken for a budget.
func parseAmount(num, suffix string) (int64, bool) {
	num = strings.ReplaceAll(num, ",", "")
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, false
	}

	switch suffix {
	case "k", "thousand":
		f *= 1_000
	case "m", "mn", "mil", "million":
		f *= 1_000_000
	default:
		if f < 1000 {
			return 0, false
		}
	}

	if f <= 0 || f > math.MaxInt64 {
		return 0, false
	}
	return int64(math.Round(f)), true
}

func detectCurrency(lower string) string {
	for _, c := range currencyAliases {
		if strings.Contains(lower, c.alias) {
			return c.code
		}
	}
	return DefaultCurrency
}
