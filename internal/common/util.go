package common

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// TokenBytes is the number of random bytes behind every issued token.
// Hex encoding doubles it, so tokens are 64 characters long.
const TokenBytes = 32

// randRead is a seam for tests that need the entropy source to fail.
var randRead = rand.Read

// MakeRandHexString generates a random hexadecimal string of the given size.
// The size parameter specifies the number of random bytes to generate before
// encoding them as a hexadecimal string, so the final string length is twice
// the size.
//
// It returns an error if the random number generator fails; callers must
// treat that as fatal and never fall back to a weaker source.
func MakeRandHexString(size int) (string, error) {
	b, err := RandomBytes(size)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// RandomBytes returns size bytes from the system CSPRNG.
func RandomBytes(size int) ([]byte, error) {
	b := make([]byte, size)
	if _, err := randRead(b); err != nil {
		return nil, fmt.Errorf("read random bytes: %w", err)
	}
	return b, nil
}

// MakeToken returns a fresh TokenBytes-sized random token, hex-encoded.
func MakeToken() (string, error) {
	return MakeRandHexString(TokenBytes)
}

// WipeByteArray overwrites the contents of the provided byte slice with zeros.
// If the slice is nil, the function does nothing.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
