package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Hasher turns plaintext passwords into storable digests and checks them.
// Hash returns "" for input it cannot digest.
type Hasher interface {
	Hash(plaintext string) string
	Verify(plaintext, digest string) bool
}

// SHA256Hasher produces the unsalted, single-round SHA-256 hex digests the
// users table has always stored. It is weak against offline attacks; new
// deployments should select BcryptHasher.
type SHA256Hasher struct{}

func (SHA256Hasher) Hash(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

func (h SHA256Hasher) Verify(plaintext, digest string) bool {
	computed := h.Hash(plaintext)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(strings.ToLower(digest))) == 1
}

// BcryptHasher is a salted alternative with the same contract.
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(plaintext string) string {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), cost)
	if err != nil {
		// Only reachable for inputs over 72 bytes or an invalid cost; an empty
		// digest never verifies.
		return ""
	}
	return string(hashed)
}

func (BcryptHasher) Verify(plaintext, digest string) bool {
	if digest == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}

// NewHasher returns the hasher registered under name.
func NewHasher(name string) (Hasher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sha256":
		return SHA256Hasher{}, nil
	case "bcrypt":
		return BcryptHasher{Cost: bcrypt.DefaultCost}, nil
	default:
		return nil, fmt.Errorf("unknown password hasher %q", name)
	}
}
