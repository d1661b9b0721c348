// AngelaMos | 2026
// phone.go

package otp

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	minNationalDigits = 6
	maxNationalDigits = 14
)

// PhoneNumber is a parsed number. Variants lists every spelling a stored
// record may use: +CCN, CCN, 0N and N.
type PhoneNumber struct {
	Canonical string
	National  string
	Variants  []string
}

// PhoneNormalizer parses numbers for one country, accepting input with or
// without the country code and with or without the trunk prefix.
type PhoneNormalizer struct {
	CountryCode string
	TrunkPrefix string
}

func (p PhoneNormalizer) Normalize(raw string) (PhoneNumber, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return PhoneNumber{}, fmt.Errorf("normalize %q: %w", raw, ErrInvalidPhone)
	}

	var digits strings.Builder
	for i, r := range raw {
		switch {
		case unicode.IsDigit(r) && r < unicode.MaxASCII:
			digits.WriteRune(r)
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return PhoneNumber{}, fmt.Errorf("normalize %q: %w", raw, ErrInvalidPhone)
		}
	}

	national := strings.TrimPrefix(digits.String(), "00"+p.CountryCode)
	if national == digits.String() {
		national = strings.TrimPrefix(national, p.CountryCode)
	}
	if p.TrunkPrefix != "" {
		national = strings.TrimPrefix(national, p.TrunkPrefix)
	}

	if len(national) < minNationalDigits || len(national) > maxNationalDigits {
		return PhoneNumber{}, fmt.Errorf("normalize %q: %w", raw, ErrInvalidPhone)
	}

	variants := []string{
		"+" + p.CountryCode + national,
		p.CountryCode + national,
	}
	if p.TrunkPrefix != "" {
		variants = append(variants, p.TrunkPrefix+national)
	}
	variants = append(variants, national)

	return PhoneNumber{
		Canonical: variants[0],
		National:  national,
		Variants:  variants,
	}, nil
}
