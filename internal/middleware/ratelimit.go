package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/clusterdeck/clusterdeck/internal/apierror"
	"github.com/clusterdeck/clusterdeck/internal/auth"
	"github.com/clusterdeck/clusterdeck/internal/metrics"
	"github.com/clusterdeck/clusterdeck/internal/ratelimit"
	"github.com/clusterdeck/clusterdeck/pkg/logger"
)

// RateLimitConfig holds configuration for the rate limit middleware.
type RateLimitConfig struct {
	// CookieName is the session cookie consulted for a token name.
	CookieName string
	// Exempt paths are never limited.
	Exempt []string
}

// RateLimit limits callers with limiter. Requests presenting a token are
// counted per token name so every credential gets its own budget for key
// guesses; anonymous requests are counted per client IP. Limiter errors
// fail open.
func RateLimit(limiter ratelimit.Limiter, cfg RateLimitConfig, log *logger.Logger) Middleware {
	exempt := make(map[string]bool, len(cfg.Exempt))
	for _, p := range cfg.Exempt {
		exempt[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exempt[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			result, err := limiter.Allow(r.Context(), rateLimitKey(r, cfg.CookieName))
			if err != nil {
				log.Warn("rate limiter unavailable", "error", err.Error())
				next.ServeHTTP(w, r)
				return
			}

			setRateLimitHeaders(w, result)
			if !result.Allowed {
				metrics.RecordRateLimited()
				apierror.Write(w, http.StatusTooManyRequests, apierror.CodeRateLimited, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rateLimitKey(r *http.Request, cookieName string) string {
	if name, _, err := auth.Credentials(r, cookieName); err == nil {
		return "token:" + name
	}
	ip := GetClientIP(r.Context())
	if ip == "" {
		ip = hostOnly(r.RemoteAddr)
	}
	return "ip:" + ip
}

func setRateLimitHeaders(w http.ResponseWriter, result *ratelimit.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	if result.ResetAfter > 0 {
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(result.ResetAfter).Unix(), 10))
	}
	if !result.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(max(int(result.RetryAfter.Seconds()), 1)))
	}
}
