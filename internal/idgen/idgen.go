// Package idgen generates resource IDs and token secrets.
package idgen

import (
	"crypto/rand"
	"errors"
	"math/big"
)

// Alphabets used by generators.
const (
	// LowerAlphabet keeps generated names valid as DNS-1123 labels.
	LowerAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	// KeyAlphabet is used for token secrets.
	KeyAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// Defaults for the resource kinds this server creates.
const (
	ClusterPrefix    = "c-"
	TokenPrefix      = "token-"
	DefaultIDLength  = 5
	DefaultKeyLength = 54
)

// ErrMaxRetriesExceeded is returned when collision retry limit is reached.
var ErrMaxRetriesExceeded = errors.New("maximum retries exceeded for unique ID generation")

// Generator produces a new identifier.
type Generator interface {
	Generate() (string, error)
}

// RandomGenerator draws characters from an alphabet using crypto/rand and
// prepends a fixed prefix.
type RandomGenerator struct {
	prefix   string
	alphabet string
	length   int
}

// NewRandomGenerator creates a generator. An empty alphabet means
// LowerAlphabet; a non-positive length means DefaultIDLength.
func NewRandomGenerator(prefix, alphabet string, length int) *RandomGenerator {
	if alphabet == "" {
		alphabet = LowerAlphabet
	}
	if length < 1 {
		length = DefaultIDLength
	}
	return &RandomGenerator{prefix: prefix, alphabet: alphabet, length: length}
}

// NewClusterIDGenerator returns a generator for IDs like "c-x7k2p".
func NewClusterIDGenerator() *RandomGenerator {
	return NewRandomGenerator(ClusterPrefix, LowerAlphabet, DefaultIDLength)
}

// NewTokenNameGenerator returns a generator for names like "token-4fj9q".
func NewTokenNameGenerator() *RandomGenerator {
	return NewRandomGenerator(TokenPrefix, LowerAlphabet, DefaultIDLength)
}

// NewKeyGenerator returns a generator for unprefixed token secrets.
func NewKeyGenerator() *RandomGenerator {
	return NewRandomGenerator("", KeyAlphabet, DefaultKeyLength)
}

// Generate returns prefix followed by length random characters.
func (g *RandomGenerator) Generate() (string, error) {
	result := make([]byte, g.length)
	max := big.NewInt(int64(len(g.alphabet)))

	for i := 0; i < g.length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		result[i] = g.alphabet[n.Int64()]
	}

	return g.prefix + string(result), nil
}

// Length returns the number of random characters, excluding the prefix.
func (g *RandomGenerator) Length() int {
	return g.length
}

// Prefix returns the configured prefix.
func (g *RandomGenerator) Prefix() string {
	return g.prefix
}
