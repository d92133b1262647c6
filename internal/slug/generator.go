package slug

import (
	"crypto/rand"
	"fmt"
)

// URL-safe alphabet; 64 symbols so a random byte masked with 63 maps evenly.
const defaultSymbols = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-"

const (
	// DefaultLength gives ~126 bits of randomness.
	DefaultLength = 21
	// MaxLength bounds ids accepted from clients.
	MaxLength = 64
)

// Generator produces random paste ids
type Generator struct {
	symbols string
	length  int
}

// New creates a new id generator. Non-positive lengths use DefaultLength.
func New(length int) *Generator {
	if length <= 0 {
		length = DefaultLength
	}
	if length > MaxLength {
		length = MaxLength
	}
	return &Generator{
		symbols: defaultSymbols,
		length:  length,
	}
}

// Generate creates a new random id of the configured length
func (g *Generator) Generate() (string, error) {
	return g.GenerateLength(g.length)
}

// GenerateLength creates a random id of the specified length
func (g *Generator) GenerateLength(length int) (string, error) {
	if length <= 0 {
		length = g.length
	}

	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = g.symbols[b&63]
	}
	return string(buf), nil
}

// IsValid reports whether id could have been produced by a Generator. Anything
// else is treated as an unknown paste by callers.
func IsValid(id string) bool {
	if len(id) == 0 || len(id) > MaxLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}
