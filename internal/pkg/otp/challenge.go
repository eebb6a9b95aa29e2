package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"
)

var (
	ErrNotFound     = errors.New("otp challenge not found")
	ErrExhausted    = errors.New("otp attempts exhausted")
	ErrCodeMismatch = errors.New("otp code mismatch")
)

// Challenge is the single active one-time code for a key.
type Challenge struct {
	Key        string     `json:"key"`
	CodeHash   string     `json:"code_hash"`
	IssuedAt   time.Time  `json:"issued_at"`
	TTLSeconds int        `json:"ttl_seconds"`
	ExpiresAt  time.Time  `json:"expires_at"`
	Attempts   int        `json:"attempts"`
	Verified   bool       `json:"verified"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
}

// Expired reports whether the TTL has elapsed at now.
func (c *Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

func (c *Challenge) clone() *Challenge {
	if c == nil {
		return nil
	}
	cp := *c
	if c.VerifiedAt != nil {
		t := *c.VerifiedAt
		cp.VerifiedAt = &t
	}
	return &cp
}

// GenerateCode returns a uniformly distributed 6-digit code in 100000..999999.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

func HashCode(code string) string {
	h := sha256.Sum256([]byte(code))
	return hex.EncodeToString(h[:])
}

// CodeEqual compares a provided code against a stored hash in constant time.
func CodeEqual(provided, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashCode(provided)), []byte(storedHash)) == 1
}
