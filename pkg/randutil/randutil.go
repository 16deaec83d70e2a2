// Package randutil implements random utilities.
package randutil

import (
	"crypto/rand"
	"encoding/hex"
	mrand "math/rand"
)

const ll = "0123456789abcdefghijklmnopqrstuvwxyz"

// String returns a random string of length n, lower-case alphanumeric.
func String(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = ll[mrand.Intn(len(ll))]
	}
	return string(b)
}

// Bytes returns n random bytes, falling back to math/rand on entropy failure.
func Bytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		for i := range b {
			b[i] = ll[mrand.Intn(len(ll))]
		}
	}
	return b
}

// Hex returns a hex-encoded random string of length n.
func Hex(n int) string {
	h := hex.EncodeToString(Bytes(n))
	if len(h) > n {
		h = h[:n]
	}
	return h
}
