// Package cryptox holds the primitives the gatekeeper relies on: a one-way
// password digest, constant-time comparison, and AES-GCM sealing used for
// archived audit snapshots.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for stored credentials. The digest is deterministic
// for a given (password, salt) pair.
const (
	hashTime    = 2
	hashMemory  = 19 * 1024
	hashThreads = 1

	// DigestSize is the raw digest width; stored hashes are hex, twice as long.
	DigestSize = 32
)

// ErrInvalidCiphertext is returned when sealed data is too short to hold a nonce.
var ErrInvalidCiphertext = errors.New("invalid ciphertext")

// HashPassword returns the hex-encoded argon2id digest of password.
func HashPassword(password, salt []byte) string {
	return hex.EncodeToString(argon2.IDKey(password, salt, hashTime, hashMemory, hashThreads, DigestSize))
}

// VerifyPassword reports whether password hashes to encoded under salt.
func VerifyPassword(password, salt []byte, encoded []byte) bool {
	candidate := []byte(HashPassword(password, salt))
	return Equal(candidate, encoded)
}

// Equal compares two secrets in constant time. Empty inputs never match.
func Equal(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// Seal encrypts plaintext with AES-GCM. The random nonce is prepended to the
// returned ciphertext.
//
// The key must be a valid AES key length (16, 24, or 32 bytes).
func Seal(plaintext, key []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aesgcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}

	return aesgcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open reverses Seal.
func Open(sealed, key []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	n := aesgcm.NonceSize()
	if len(sealed) < n {
		return nil, ErrInvalidCiphertext
	}

	return aesgcm.Open(nil, sealed[:n], sealed[n:], nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
