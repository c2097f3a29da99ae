// Package symbol handles stock ticker symbol normalization and validation.
package symbol

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// symbolRegex matches exchange-style ticker symbols: 1-10 uppercase letters,
// with optional dots for share classes (e.g. BRK.B).
var symbolRegex = regexp.MustCompile(`^[A-Z][A-Z.]{0,9}$`)

var (
	ErrEmpty   = errors.New("symbol: symbol is empty")
	ErrInvalid = errors.New("symbol: invalid symbol format")
)

// Normalize trims and uppercases a raw symbol and validates its format.
// Returns the canonical form used as the position key and sent to the
// quote provider.
func Normalize(raw string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return "", ErrEmpty
	}
	if !symbolRegex.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalid, raw)
	}
	return s, nil
}
