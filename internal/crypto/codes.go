// Package crypto generates access codes and log-safe code fingerprints.
package crypto

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// CodeEntropyBytes is the number of random bytes behind every access code (128 bits).
const CodeEntropyBytes = 16

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// NewCode returns prefix followed by base58 of CodeEntropyBytes random bytes.
func NewCode(prefix string) (string, error) {
	b, err := RandBytes(CodeEntropyBytes)
	if err != nil {
		return "", err
	}
	return prefix + base58.Encode(b), nil
}

// Fingerprint returns a short blake2b digest of code, suitable for logs.
func Fingerprint(code string) string {
	sum := blake2b.Sum256([]byte(code))
	return hex.EncodeToString(sum[:6])
}
