package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsWebSocketUpgrade(t *testing.T) {
	tests := []struct {
		name       string
		connection string
		upgrade    string
		want       bool
	}{
		{"plain request", "", "", false},
		{"upgrade", "upgrade", "websocket", true},
		{"mixed case", "Upgrade", "WebSocket", true},
		{"token list", "keep-alive, Upgrade", "websocket", true},
		{"other protocol", "upgrade", "h2c", false},
		{"missing connection", "", "websocket", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/v3/clusters", nil)
			if tt.connection != "" {
				r.Header.Set("Connection", tt.connection)
			}
			if tt.upgrade != "" {
				r.Header.Set("Upgrade", tt.upgrade)
			}
			assert.Equal(t, tt.want, IsWebSocketUpgrade(r))
		})
	}
}

func TestOriginChecker_Allowed(t *testing.T) {
	checker := NewOriginChecker([]string{
		"https://ui.example.com/",
		"https://*.corp.example.com",
		"*.dev.example.com",
		" ",
	})

	tests := []struct {
		name   string
		origin string
		host   string
		want   bool
	}{
		{"no origin", "", "api.example.com", true},
		{"same host", "https://api.example.com", "api.example.com", true},
		{"same host with port", "http://localhost:8080", "localhost:8080", true},
		{"same host different port", "http://localhost:3000", "localhost:8080", false},
		{"same host case insensitive", "https://API.example.com", "api.example.com", true},
		{"exact allow-list", "https://ui.example.com", "api.example.com", true},
		{"exact allow-list wrong scheme", "http://ui.example.com", "api.example.com", false},
		{"wildcard", "https://a.corp.example.com", "api.example.com", true},
		{"wildcard needs subdomain", "https://corp.example.com", "api.example.com", false},
		{"wildcard wrong scheme", "http://a.corp.example.com", "api.example.com", false},
		{"schemeless wildcard", "http://x.dev.example.com", "api.example.com", true},
		{"unknown host", "https://evil.com", "api.example.com", false},
		{"not a url", "badStuff", "api.example.com", false},
		{"null origin", "null", "api.example.com", false},
		{"unparseable", "http://[::1", "api.example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, checker.Allowed(tt.origin, tt.host))
		})
	}
}

func TestOriginChecker_CheckOrigin(t *testing.T) {
	checker := NewOriginChecker(nil)

	r := httptest.NewRequest(http.MethodGet, "http://api.example.com/v3/subscribe", nil)
	r.Header.Set("Origin", "badStuff")
	assert.False(t, checker.CheckOrigin(r))

	r.Header.Set("Origin", "http://api.example.com")
	assert.True(t, checker.CheckOrigin(r))
}

func TestMatchHost(t *testing.T) {
	assert.True(t, MatchHost("api.github.com", "API.github.com"))
	assert.False(t, MatchHost("api.github.com", "github.com"))
	assert.True(t, MatchHost("*.amazonaws.com", "ec2.us-east-1.amazonaws.com"))
	assert.False(t, MatchHost("*.amazonaws.com", ".amazonaws.com"))
	assert.False(t, MatchHost("*.amazonaws.com", "amazonaws.com.evil.io"))
	assert.True(t, MatchHost("*", "anything"))
}
