package textutil

import (
	"strings"
	"unicode/utf8"
)

// Pub/Sub attribute limits.
const (
	maxAttributeKeyBytes    = 256
	maxAttributeValueBytes  = 1024
	reservedAttributePrefix = "goog"
)

// CleanAttributes prepares free-form key/value pairs for use as message
// attributes. Keys and values are trimmed; empty, reserved, and over-long
// keys are dropped; values are cut to the byte limit on a rune boundary.
// It returns nil when nothing survives.
func CleanAttributes(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	result := make(map[string]string, len(values))
	for key, value := range values {
		key = strings.TrimSpace(key)
		if key == "" || len(key) > maxAttributeKeyBytes {
			continue
		}
		if strings.HasPrefix(strings.ToLower(key), reservedAttributePrefix) {
			continue
		}
		result[key] = truncateBytes(strings.TrimSpace(value), maxAttributeValueBytes)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func truncateBytes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
