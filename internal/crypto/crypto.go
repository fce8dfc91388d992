package crypto

import (
	"crypto/subtle"
	"strings"
)

func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

func ConstantTimeEqualString(a, b string) bool {
	return ConstantTimeEqual([]byte(a), []byte(b))
}

// HasZeroPrefix reports whether the hex digest starts with n '0' characters.
func HasZeroPrefix(digest string, n int) bool {
	if n < 0 || n > len(digest) {
		return false
	}
	return strings.Count(digest[:n], "0") == n
}
