package util

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// TruncateString truncates to maxRunes runes and appends "..." when cut.
func TruncateString(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "..."
}

// CleanText NFC-normalizes user text, drops control characters other than
// newline and tab, and trims the result.
func CleanText(s string) string {
	s = norm.NFC.String(s)
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// CleanAll applies CleanText to every element.
func CleanAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = CleanText(v)
	}
	return out
}

// MaskSecret keeps the first four characters of a credential for logs.
func MaskSecret(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", 4)
}
