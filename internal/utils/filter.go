package utils

import "unicode"

// HasWordRune reports whether s contains a letter or a digit.
func HasWordRune(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// IsValidQuery rejects empty input, input longer than maxLen bytes and input
// without any letter or digit. maxLen <= 0 disables the length check.
func IsValidQuery(s string, maxLen int) bool {
	if s == "" || (maxLen > 0 && len(s) > maxLen) {
		return false
	}
	return HasWordRune(s)
}
