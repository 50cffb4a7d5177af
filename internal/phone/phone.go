// Package phone normalizes subscriber numbers to the canonical
// +<country code><subscriber> form used everywhere inside the relay.
package phone

import "strings"

const (
	// CountryCode is the dialing code of the carrier's network.
	CountryCode = "221"

	// MobilePrefixes lists the first subscriber digits of mobile numbers.
	MobilePrefixes = "37"

	subscriberLength    = 9
	internationalPrefix = "00"
	addressScheme       = "tel:"
)

var separators = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "")

// Normalize returns the canonical form of raw, or false when raw is not a
// mobile number of the carrier's network. Accepted inputs, after spaces,
// hyphens and parentheses are stripped:
//
//	771234567         local subscriber number
//	221771234567      country-code prefixed, with or without a leading +
//	00221771234567    international dial prefix
func Normalize(raw string) (string, bool) {
	clean := strings.TrimPrefix(separators.Replace(raw), "+")

	var subscriber string
	switch {
	case len(clean) == subscriberLength:
		subscriber = clean
	case len(clean) == len(CountryCode)+subscriberLength && strings.HasPrefix(clean, CountryCode):
		subscriber = clean[len(CountryCode):]
	case len(clean) == len(internationalPrefix+CountryCode)+subscriberLength &&
		strings.HasPrefix(clean, internationalPrefix+CountryCode):
		subscriber = clean[len(internationalPrefix+CountryCode):]
	default:
		return "", false
	}

	if !isDigits(subscriber) || strings.IndexByte(MobilePrefixes, subscriber[0]) < 0 {
		return "", false
	}
	return "+" + CountryCode + subscriber, true
}

// Validate reports whether raw normalizes to a canonical mobile number.
func Validate(raw string) bool {
	canonical, ok := Normalize(raw)
	if !ok {
		return false
	}
	digits := canonical[1:]
	return len(digits) == len(CountryCode)+subscriberLength &&
		isDigits(digits) &&
		strings.HasPrefix(digits, CountryCode) &&
		strings.IndexByte(MobilePrefixes, digits[len(CountryCode)]) >= 0
}

// ParseAddress strips the tel: scheme from a carrier address. Numbers of the
// carrier's network come back canonical; foreign numbers are returned as-is
// so inbound traffic from them is not lost.
func ParseAddress(address string) string {
	bare := strings.TrimSpace(address)
	if len(bare) >= len(addressScheme) && strings.EqualFold(bare[:len(addressScheme)], addressScheme) {
		bare = bare[len(addressScheme):]
	}
	if canonical, ok := Normalize(bare); ok {
		return canonical
	}
	return bare
}

// Address formats a canonical number as a carrier tel: URI.
func Address(number string) string {
	return addressScheme + number
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
