// Package ratelimit provides sliding-window request limiting keyed by
// caller identity.
package ratelimit

import (
	"context"
	"time"
)

// Result is the outcome of one Allow call.
type Result struct {
	Allowed    bool
	Remaining  int
	ResetAfter time.Duration // until the oldest counted request leaves the window
	RetryAfter time.Duration // zero when allowed
	Limit      int
}

// Limiter counts requests per identifier. Identifiers are opaque; the
// middleware uses "token:<name>" for authenticated callers and "ip:<addr>"
// otherwise.
type Limiter interface {
	Allow(ctx context.Context, identifier string) (*Result, error)
	Reset(ctx context.Context, identifier string) error
	Close() error
}

// Config holds rate limiter configuration.
type Config struct {
	Requests int
	Window   time.Duration
}

// DefaultConfig returns 100 requests per minute.
func DefaultConfig() Config {
	return Config{Requests: 100, Window: time.Minute}
}

// result builds a Result from the post-decision count and the timestamp of
// the oldest request still in the window.
func (c Config) result(allowed bool, count int, oldest, now time.Time) *Result {
	var resetAfter time.Duration
	if !oldest.IsZero() {
		resetAfter = max(oldest.Add(c.Window).Sub(now), 0)
	}
	r := &Result{
		Allowed:    allowed,
		Remaining:  max(c.Requests-count, 0),
		ResetAfter: resetAfter,
		Limit:      c.Requests,
	}
	if !allowed {
		r.RetryAfter = resetAfter
	}
	return r
}
