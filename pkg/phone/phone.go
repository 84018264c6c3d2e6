// Package phone canonicalizes user-supplied phone numbers into the
// +<countrycode><digits> form used for every lookup and comparison.
package phone

import (
	"errors"
	"strings"
)

var ErrInvalidFormat = errors.New("invalid phone number format")

const minDigits = 7

// Normalize strips formatting characters (spaces, dashes, parentheses,
// dots) from raw input. Input with a leading + keeps its country code;
// anything else gets defaultCountryCode prepended. Normalize is
// idempotent: an already-canonical number comes back unchanged.
func Normalize(raw, defaultCountryCode string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidFormat
	}

	hasCountryCode := strings.HasPrefix(raw, "+")

	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) < minDigits {
		return "", ErrInvalidFormat
	}

	if hasCountryCode {
		return "+" + digits, nil
	}

	cc := strings.TrimPrefix(strings.TrimSpace(defaultCountryCode), "+")
	if cc == "" {
		cc = "1"
	}
	return "+" + cc + digits, nil
}

// Last4 returns the last four digits of a canonical number, used for
// default display names.
func Last4(canonical string) string {
	if len(canonical) < 4 {
		return canonical
	}
	return canonical[len(canonical)-4:]
}

// Mask hides the middle of a canonical number for log output.
func Mask(canonical string) string {
	if len(canonical) <= 6 {
		return canonical
	}
	return canonical[:3] + strings.Repeat("*", len(canonical)-6) + canonical[len(canonical)-3:]
}
