// Package otp generates one-time passcodes.
package otp

import (
	"crypto/rand"
	"fmt"
)

// Generate returns a numeric code of the given length. Each digit is drawn
// independently and uniformly from crypto/rand; values >= 250 are rejected
// so the modulo reduction cannot bias the distribution. Safe for concurrent
// use (no shared state).
func Generate(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid code length %d", length)
	}

	code := make([]byte, 0, length)
	buf := make([]byte, length)

	for len(code) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= 250 {
				continue
			}
			code = append(code, '0'+b%10)
			if len(code) == length {
				break
			}
		}
	}

	return string(code), nil
}
