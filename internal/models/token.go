package models

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// Token errors
var (
	ErrTokenNotFound  = errors.New("token not found")
	ErrTokenExists    = errors.New("token already exists")
	ErrTokenExpired   = errors.New("token has expired")
	ErrTokenDisabled  = errors.New("token is disabled")
	ErrTokenMismatch  = errors.New("token key does not match")
	ErrMalformedToken = errors.New("token must be in the form name:key")
)

// Token is an API credential. Only the SHA-256 digest of the key is stored.
type Token struct {
	Name        string     `json:"name"`
	KeyHash     string     `json:"-"`
	UserID      string     `json:"userId"`
	Description string     `json:"description,omitempty"`
	Enabled     bool       `json:"enabled"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	LastUsedAt  *time.Time `json:"lastUsedAt,omitempty"`
	UsageCount  int64      `json:"usageCount"`
	CreatedAt   time.Time  `json:"created"`
}

// IsExpired checks if the token has expired.
func (t *Token) IsExpired() bool {
	if t.ExpiresAt == nil {
		return false
	}
	return time.Now().After(*t.ExpiresAt)
}

// Verify checks key against the stored digest and the token's validity.
func (t *Token) Verify(key string) error {
	got := HashTokenKey(key)
	if subtle.ConstantTimeCompare([]byte(got), []byte(t.KeyHash)) != 1 {
		return ErrTokenMismatch
	}
	if !t.Enabled {
		return ErrTokenDisabled
	}
	if t.IsExpired() {
		return ErrTokenExpired
	}
	return nil
}

// TokenCreate represents the data needed to create a new token.
type TokenCreate struct {
	Name        string
	Key         string
	UserID      string
	Description string
	ExpiresAt   *time.Time
}

// Validate validates the TokenCreate data.
func (c *TokenCreate) Validate() error {
	if c.Name == "" || c.Key == "" || strings.Contains(c.Name, ":") {
		return ErrMalformedToken
	}
	if c.UserID == "" {
		return errors.New("token user cannot be empty")
	}
	return nil
}

// HashTokenKey returns the hex SHA-256 digest of key.
func HashTokenKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// SplitToken splits "name:key" into its parts.
func SplitToken(raw string) (name, key string, err error) {
	name, key, ok := strings.Cut(raw, ":")
	if !ok || name == "" || key == "" {
		return "", "", ErrMalformedToken
	}
	return name, key, nil
}
