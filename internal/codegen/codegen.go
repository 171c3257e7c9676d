// Package codegen produces the short, human-shareable codes that identify
// access links. Codes are upper-case alphanumerics so they survive being
// read over the phone or typed from a gate keypad.
package codegen

import (
	"crypto/rand"
	"errors"
	"fmt"
)

const Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// DefaultLength matches the length of codes issued by the admin API unless
// configured otherwise.
const DefaultLength = 8

var ErrInvalidLength = errors.New("codegen: length must be positive")

// New returns a random code of n characters drawn from Alphabet.
func New(n int) (string, error) {
	if n <= 0 {
		return "", ErrInvalidLength
	}

	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("codegen: read random bytes: %w", err)
	}

	for i, b := range buf {
		buf[i] = Alphabet[int(b)%len(Alphabet)]
	}
	return string(buf), nil
}
