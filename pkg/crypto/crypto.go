// Package crypto derives and verifies salted password hashes.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

// SaltSize is the byte length of generated salts.
const SaltSize = 16

// Argon2id parameters. Deliberately slow; tune with care.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
)

// GenerateSalt returns a fresh cryptographically random salt.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("crypto: generate salt: %w", err)
	}
	return salt, nil
}

// HashPassword derives an Argon2id hash from a password and salt.
func HashPassword(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// NewCredential generates a fresh salt and derives the password hash.
// Every call produces a distinct salt.
func NewCredential(password string) (hash, salt []byte, err error) {
	salt, err = GenerateSalt()
	if err != nil {
		return nil, nil, err
	}
	return HashPassword(password, salt), salt, nil
}

// VerifyPassword recomputes the hash for the presented password and compares
// it against the stored hash in constant time.
func VerifyPassword(password string, storedHash, storedSalt []byte) bool {
	computed := HashPassword(password, storedSalt)
	return subtle.ConstantTimeCompare(computed, storedHash) == 1
}
