// Package phone canonicalizes Japanese phone numbers into E.164 form.
// The regexp below is the single source of truth for validity; no other
// package re-implements the check.
package phone

import (
	"errors"
	"regexp"
	"strings"
)

var ErrInvalidFormat = errors.New("invalid phone number format")

// Japanese mobile/landline numbers: country code, then 9-10 significant
// digits with no leading zero.
var jpNumber = regexp.MustCompile(`^\+81[1-9]\d{8,9}$`)

// Normalize converts a free-form phone number string into its canonical
// international form, e.g. "090-1234-5678" -> "+819012345678". Full-width
// digits are folded to ASCII, everything that is not a digit is stripped,
// and domestic notation is rewritten to the +81 prefix.
func Normalize(raw string) (string, error) {
	digits := extractDigits(raw)
	if digits == "" {
		return "", ErrInvalidFormat
	}

	var normalized string
	switch {
	case strings.HasPrefix(digits, "0"):
		normalized = "+81" + digits[1:]
	case strings.HasPrefix(digits, "81"):
		normalized = "+" + digits
	default:
		normalized = "+81" + digits
	}

	if !jpNumber.MatchString(normalized) {
		return "", ErrInvalidFormat
	}

	return normalized, nil
}

func extractDigits(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= '０' && r <= '９':
			// full-width digits
			b.WriteRune('0' + (r - '０'))
		}
	}
	return b.String()
}
