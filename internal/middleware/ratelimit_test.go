package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/clusterdeck/clusterdeck/internal/apierror"
	"github.com/clusterdeck/clusterdeck/internal/ratelimit"
	"github.com/clusterdeck/clusterdeck/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLimiter struct {
	result *ratelimit.Result
	err    error
	calls  []string
}

func (m *mockLimiter) Allow(_ context.Context, identifier string) (*ratelimit.Result, error) {
	m.calls = append(m.calls, identifier)
	return m.result, m.err
}

func (m *mockLimiter) Reset(context.Context, string) error { return nil }
func (m *mockLimiter) Close() error                        { return nil }

func serveRateLimited(limiter ratelimit.Limiter, cfg RateLimitConfig, req *http.Request) (*httptest.ResponseRecorder, bool) {
	called := false
	h := RateLimit(limiter, cfg, logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, called
}

func TestRateLimit_Allows(t *testing.T) {
	limiter := &mockLimiter{result: &ratelimit.Result{Allowed: true, Remaining: 9, Limit: 10, ResetAfter: time.Minute}}
	req := httptest.NewRequest(http.MethodGet, "/v3/clusters", nil)
	req.RemoteAddr = "192.168.1.1:12345"

	rec, called := serveRateLimited(limiter, RateLimitConfig{}, req)

	assert.True(t, called)
	assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "9", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
	assert.Empty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, []string{"ip:192.168.1.1"}, limiter.calls)
}

func TestRateLimit_Rejects(t *testing.T) {
	limiter := &mockLimiter{result: &ratelimit.Result{Allowed: false, Limit: 10, ResetAfter: 30 * time.Second, RetryAfter: 30 * time.Second}}
	req := httptest.NewRequest(http.MethodGet, "/v3/clusters", nil)

	rec, called := serveRateLimited(limiter, RateLimitConfig{}, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))

	var body apierror.Error
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "error", body.Type)
	assert.Equal(t, apierror.CodeRateLimited, body.Code)
	assert.Equal(t, http.StatusTooManyRequests, body.Status)
}

func TestRateLimit_KeysByTokenName(t *testing.T) {
	limiter := &mockLimiter{result: &ratelimit.Result{Allowed: true, Limit: 10}}
	req := httptest.NewRequest(http.MethodGet, "/v3/clusters", nil)
	req.Header.Set("Authorization", "Bearer token-abcde:secret")

	_, called := serveRateLimited(limiter, RateLimitConfig{CookieName: "R_SESS"}, req)

	assert.True(t, called)
	assert.Equal(t, []string{"token:token-abcde"}, limiter.calls)
}

func TestRateLimit_PrefersContextClientIP(t *testing.T) {
	limiter := &mockLimiter{result: &ratelimit.Result{Allowed: true, Limit: 10}}
	req := httptest.NewRequest(http.MethodGet, "/v3", nil)
	req = req.WithContext(context.WithValue(req.Context(), ClientIPKey, "203.0.113.7"))

	serveRateLimited(limiter, RateLimitConfig{}, req)

	assert.Equal(t, []string{"ip:203.0.113.7"}, limiter.calls)
}

func TestRateLimit_Exempt(t *testing.T) {
	limiter := &mockLimiter{result: &ratelimit.Result{Allowed: false}}
	req := httptest.NewRequest(http.MethodGet, "/health", nil)

	_, called := serveRateLimited(limiter, RateLimitConfig{Exempt: []string{"/health"}}, req)

	assert.True(t, called)
	assert.Empty(t, limiter.calls)
}

func TestRateLimit_FailsOpen(t *testing.T) {
	limiter := &mockLimiter{err: errors.New("redis down")}
	req := httptest.NewRequest(http.MethodGet, "/v3", nil)

	rec, called := serveRateLimited(limiter, RateLimitConfig{}, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}
