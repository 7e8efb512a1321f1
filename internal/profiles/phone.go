package profiles

import (
	"fmt"
	"strings"

	"golang.org/x/text/width"
)

// NormalizePhone folds full-width digits to ASCII, drops common separators
// and checks the result is 7 to 15 digits with an optional leading +.
func NormalizePhone(raw string) (string, error) {
	s := width.Narrow.String(strings.TrimSpace(raw))

	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return "", fmt.Errorf("%w: phone contains %q", ErrInvalidProfile, r)
		}
	}

	out := b.String()
	digits := len(strings.TrimPrefix(out, "+"))
	if digits < 7 || digits > 15 {
		return "", fmt.Errorf("%w: phone must have 7 to 15 digits", ErrInvalidProfile)
	}
	return out, nil
}
