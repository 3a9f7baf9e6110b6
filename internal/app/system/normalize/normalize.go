// Package normalize canonicalizes user-supplied identifiers before they are
// stored or used as lookup keys.
package normalize

import (
	"errors"
	"strings"
	"unicode"
)

// ErrInvalidPhone is returned when a phone number cannot be canonicalized.
var ErrInvalidPhone = errors.New("invalid phone number")

// Email trims and lowercases an email address.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Name trims surrounding space and collapses inner runs of whitespace.
// Case is preserved.
func Name(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NationalID trims, removes inner spaces and uppercases an ID number.
func NationalID(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}

// Phone returns the country-code-prefixed digits-only form of raw, with no
// leading "+" or trunk "0":
//
//	"0712 345 678"    -> "254712345678"
//	"+254-712-345678" -> "254712345678"
//	"712345678"       -> "254712345678"
//
// countryCode is given without "+". Numbers for the 254 code must come out
// at 12 digits; others are accepted between 8 and 15 digits.
func Phone(raw, countryCode string) (string, error) {
	var b strings.Builder
	for i, r := range strings.TrimSpace(raw) {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return "", ErrInvalidPhone
		}
	}
	s := b.String()
	if s == "" {
		return "", ErrInvalidPhone
	}

	switch {
	case strings.HasPrefix(s, "00"):
		s = s[2:]
	case strings.HasPrefix(s, "0"):
		s = countryCode + s[1:]
	case !strings.HasPrefix(s, countryCode):
		s = countryCode + s
	}

	if countryCode == "254" {
		if len(s) != 12 {
			return "", ErrInvalidPhone
		}
		return s, nil
	}
	if len(s) < 8 || len(s) > 15 {
		return "", ErrInvalidPhone
	}
	return s, nil
}

// TrimRef trims a provider reference such as an M-Pesa receipt number and
// uppercases it. Empty input yields nil.
func TrimRef(s string) *string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return nil
	}
	return &s
}
