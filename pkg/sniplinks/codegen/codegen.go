// Package codegen produces and validates short codes.
package codegen

import (
	"crypto/rand"
	"errors"
	"math/big"
	"regexp"
	"strings"
)

const (
	// Alphabet is the 62-symbol set generated codes are drawn from.
	Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	// DefaultLength keeps expected collisions per insert around 2e-7 with
	// fifty million live links (N / 62^8).
	DefaultLength = 8

	// MaxCustomLength bounds user-chosen codes.
	MaxCustomLength = 64
)

// ErrInvalidFormat is returned for custom codes outside [A-Za-z0-9_-]{1,64}.
var ErrInvalidFormat = errors.New("invalid short code format")

var (
	customCodeRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	alphabetSize    = big.NewInt(int64(len(Alphabet)))
)

// reserved codes would be shadowed by server routes registered before the
// catch-all redirect route.
var reserved = []string{"api", "health", "not-found"}

// Generate returns a random code of length symbols from Alphabet using
// crypto/rand. A non-positive length uses DefaultLength.
func Generate(length int) (string, error) {
	if length <= 0 {
		length = DefaultLength
	}
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		idx, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", err
		}
		b.WriteByte(Alphabet[idx.Int64()])
	}
	return b.String(), nil
}

// ValidateCustom checks a user-supplied code.
func ValidateCustom(code string) error {
	if code == "" || len(code) > MaxCustomLength {
		return ErrInvalidFormat
	}
	if !customCodeRegex.MatchString(code) {
		return ErrInvalidFormat
	}
	if Reserved(code) {
		return ErrInvalidFormat
	}
	return nil
}

// Reserved reports whether code collides with a server route.
func Reserved(code string) bool {
	for _, r := range reserved {
		if strings.EqualFold(code, r) {
			return true
		}
	}
	return false
}

// InAlphabet reports whether every byte of code is a generator symbol.
func InAlphabet(code string) bool {
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(Alphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}
