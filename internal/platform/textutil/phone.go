package textutil

import "strings"

// DefaultCountryCode is used when no calling code is configured.
const DefaultCountryCode = "49"

var phoneSeparators = strings.NewReplacer(" ", "", "-", "", "/", "", "(", "", ")", "", ".", "", "\t", "")

// NormalizePhone rewrites a phone number into +<country><national> form on a
// best-effort basis. Input it cannot interpret is returned trimmed but
// otherwise unchanged; it is not a validator.
func NormalizePhone(raw, countryCode string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	cc := strings.TrimPrefix(strings.TrimSpace(countryCode), "+")
	if cc == "" {
		cc = DefaultCountryCode
	}

	compact := phoneSeparators.Replace(trimmed)
	if strings.HasPrefix(compact, "+") {
		if isDigits(compact[1:]) {
			return compact
		}
		return trimmed
	}
	if !isDigits(compact) {
		return trimmed
	}

	switch {
	case strings.HasPrefix(compact, cc):
		return "+" + compact
	case strings.HasPrefix(compact, "0"):
		return "+" + cc + compact[1:]
	case len(compact) >= 9 && len(compact) <= 11:
		return "+" + cc + compact
	}
	return trimmed
}

func isDigits(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
