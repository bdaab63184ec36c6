package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitToken(t *testing.T) {
	name, key, err := SplitToken("token-abcde:s3cr3t")
	require.NoError(t, err)
	assert.Equal(t, "token-abcde", name)
	assert.Equal(t, "s3cr3t", key)

	for _, raw := range []string{"", "token-abcde", "token-abcde:", ":s3cr3t"} {
		_, _, err := SplitToken(raw)
		assert.ErrorIs(t, err, ErrMalformedToken, raw)
	}
}

func TestToken_Verify(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)

	tests := []struct {
		name    string
		token   Token
		key     string
		wantErr error
	}{
		{
			name:  "valid key",
			token: Token{KeyHash: HashTokenKey("k1"), Enabled: true},
			key:   "k1",
		},
		{
			name:  "valid key with future expiry",
			token: Token{KeyHash: HashTokenKey("k1"), Enabled: true, ExpiresAt: &future},
			key:   "k1",
		},
		{
			name:    "wrong key",
			token:   Token{KeyHash: HashTokenKey("k1"), Enabled: true},
			key:     "k2",
			wantErr: ErrTokenMismatch,
		},
		{
			name:    "disabled",
			token:   Token{KeyHash: HashTokenKey("k1"), Enabled: false},
			key:     "k1",
			wantErr: ErrTokenDisabled,
		},
		{
			name:    "expired",
			token:   Token{KeyHash: HashTokenKey("k1"), Enabled: true, ExpiresAt: &past},
			key:     "k1",
			wantErr: ErrTokenExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.token.Verify(tt.key)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestTokenCreate_Validate(t *testing.T) {
	assert.NoError(t, (&TokenCreate{Name: "token-a", Key: "k", UserID: "admin"}).Validate())
	assert.ErrorIs(t, (&TokenCreate{Name: "tok:en", Key: "k", UserID: "admin"}).Validate(), ErrMalformedToken)
	assert.ErrorIs(t, (&TokenCreate{Name: "token-a", UserID: "admin"}).Validate(), ErrMalformedToken)
	assert.Error(t, (&TokenCreate{Name: "token-a", Key: "k"}).Validate())
}

func TestHashTokenKey(t *testing.T) {
	assert.Len(t, HashTokenKey("anything"), 64)
	assert.Equal(t, HashTokenKey("same"), HashTokenKey("same"))
	assert.NotEqual(t, HashTokenKey("a"), HashTokenKey("b"))
}
