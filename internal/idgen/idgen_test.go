package idgen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomGenerator_Format(t *testing.T) {
	tests := []struct {
		name     string
		gen      *RandomGenerator
		prefix   string
		length   int
		alphabet string
	}{
		{"cluster id", NewClusterIDGenerator(), "c-", DefaultIDLength, LowerAlphabet},
		{"token name", NewTokenNameGenerator(), "token-", DefaultIDLength, LowerAlphabet},
		{"token key", NewKeyGenerator(), "", DefaultKeyLength, KeyAlphabet},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := tt.gen.Generate()
			require.NoError(t, err)
			require.True(t, strings.HasPrefix(id, tt.prefix))

			body := strings.TrimPrefix(id, tt.prefix)
			assert.Len(t, body, tt.length)
			for _, c := range body {
				assert.True(t, strings.ContainsRune(tt.alphabet, c), "unexpected character %q", c)
			}
		})
	}
}

func TestRandomGenerator_Defaults(t *testing.T) {
	g := NewRandomGenerator("x-", "", 0)
	assert.Equal(t, DefaultIDLength, g.Length())
	assert.Equal(t, "x-", g.Prefix())
}

func TestRandomGenerator_Uniqueness(t *testing.T) {
	g := NewKeyGenerator()
	seen := make(map[string]struct{}, 1000)

	for i := 0; i < 1000; i++ {
		key, err := g.Generate()
		require.NoError(t, err)
		_, dup := seen[key]
		require.False(t, dup, "duplicate key generated")
		seen[key] = struct{}{}
	}
}
