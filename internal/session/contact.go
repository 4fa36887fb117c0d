package session

import (
	"regexp"
	"strings"
)

// Contact detection is deliberately simple pattern matching: it runs
// best-effort after every turn and must never produce false negatives on
// plainly written contacts, while staying conservative enough not to
// mistake budgets or unit numbers for phones.

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

	// Phone-shaped tokens: international prefix or a national leading
	// zero, then 8-14 more digits with optional separators.
	phoneRe = regexp.MustCompile(`(?:\+|00|0)[0-9][0-9 \-()]{7,17}[0-9]`)

	nonDigitRe = regexp.MustCompile(`[^0-9]`)
)

// NormalizeEmail lower-cases and trims an email. Returns false when the
// input is not email-shaped.
func NormalizeEmail(s string) (string, bool) {
	e := strings.ToLower(strings.TrimSpace(s))
	if e == "" || emailRe.FindString(e) != e {
		return "", false
	}
	return e, true
}

// DefaultCountryCode completes national phone numbers when no code is
// configured. UAE.
const DefaultCountryCode = "971"

// NormalizePhone canonicalizes a phone number to "+<country><digits>".
// National numbers with a leading zero get defaultCC ("971" for UAE); a
// leading-zero number with an empty defaultCC is rejected rather than
// rewritten into a number that never existed. Returns false when the
// digit count is implausible for a phone.
func NormalizePhone(s, defaultCC string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}

	hasPlus := strings.HasPrefix(s, "+")
	digits := nonDigitRe.ReplaceAllString(s, "")

	switch {
	case hasPlus:
		// Already international.
	case strings.HasPrefix(digits, "00"):
		digits = digits[2:]
	case strings.HasPrefix(digits, "0"):
		if defaultCC == "" {
			return "", false
		}
		digits = defaultCC + digits[1:]
	default:
		return "", false
	}

	if len(digits) < 9 || len(digits) > 15 {
		return "", false
	}
	return "+" + digits, true
}

// DetectEmail returns the first email-shaped token in text, normalized,
// or "" when none is found.
func DetectEmail(text string) string {
	m := emailRe.FindString(text)
	if m == "" {
		return ""
	}
	e, _ := NormalizeEmail(m)
	return e
}

// DetectPhone returns the first phone-shaped token in text, normalized,
// or "" when none is found.
func DetectPhone(text, defaultCC string) string {
	for _, m := range phoneRe.FindAllString(text, -1) {
		if p, ok := NormalizePhone(m, defaultCC); ok {
			return p
		}
	}
	return ""
}
