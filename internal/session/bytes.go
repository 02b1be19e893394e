package session

import (
	"crypto/subtle"
)

// ClearBytes overwrites b with zeros.
func ClearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// ConstantTimeCompare performs a constant-time comparison of two byte slices
func ConstantTimeCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// Clone returns a copy of b, or nil when b is empty.
func Clone(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Line returns secret followed by a newline, repeated n times, as the external
// tool expects it on stdin. The caller owns the result and should clear it.
func Line(secret []byte, n int) []byte {
	out := make([]byte, 0, (len(secret)+1)*n)
	for i := 0; i < n; i++ {
		out = append(out, secret...)
		out = append(out, '\n')
	}
	return out
}
