// Package phone normalizes Indonesian contact numbers into the digit-only
// E.164 form used as OTP keys and WhatsApp destinations.
package phone

import "strings"

const DefaultCountryCode = "62"

// Normalize keeps digits only, rewrites a leading 0 to the country code and
// prefixes the country code when it is missing. Blank input yields "".
func Normalize(input, countryCode string) string {
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}

	var b strings.Builder
	for _, r := range input {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	raw := b.String()
	if raw == "" {
		return ""
	}

	if strings.HasPrefix(raw, "0") {
		raw = countryCode + raw[1:]
	}
	if strings.HasPrefix(raw, countryCode) {
		return raw
	}
	return countryCode + raw
}

// Mask hides all but the last four digits, for log lines.
func Mask(p string) string {
	if len(p) <= 4 {
		return strings.Repeat("*", len(p))
	}
	return strings.Repeat("*", len(p)-4) + p[len(p)-4:]
}
