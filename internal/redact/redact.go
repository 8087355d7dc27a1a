// Package redact masks secrets before they reach diagnostic output.
// Log store entries are not redacted; only console output is.
package redact

import "strings"

// SensitiveHeaders are header names whose values are masked.
var SensitiveHeaders = []string{
	"authorization", "cookie", "set-cookie", "x-super-properties",
	"proxy-authorization",
}

// tailLen is how many trailing characters of a secret stay visible.
const tailLen = 20

// MaskSecret replaces all but the last 20 characters of s with "***".
// Empty input becomes "NONE".
func MaskSecret(s string) string {
	if s == "" {
		return "NONE"
	}
	if len(s) <= tailLen {
		return "***"
	}
	return "***" + s[len(s)-tailLen:]
}

// Headers returns a copy of h with sensitive values masked.
// Keys are compared case-insensitively.
func Headers(h map[string]string) map[string]string {
	keySet := make(map[string]bool, len(SensitiveHeaders))
	for _, k := range SensitiveHeaders {
		keySet[k] = true
	}

	result := make(map[string]string, len(h))
	for k, v := range h {
		if keySet[strings.ToLower(k)] {
			result[k] = MaskSecret(v)
		} else {
			result[k] = v
		}
	}
	return result
}
