// Package auth authenticates API requests with name:key tokens.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/clusterdeck/clusterdeck/internal/apierror"
	"github.com/clusterdeck/clusterdeck/internal/metrics"
	"github.com/clusterdeck/clusterdeck/internal/models"
	"github.com/clusterdeck/clusterdeck/pkg/logger"
)

// DefaultCookieName is the session cookie carrying a name:key token.
const DefaultCookieName = "R_SESS"

// Principal is the authenticated caller.
type Principal struct {
	TokenName string
	UserID    string
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored by the auth middleware.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}

// Verifier checks a token name and key. models.ErrTokenNotFound,
// ErrTokenMismatch, ErrTokenDisabled and ErrTokenExpired mark a bad
// credential; any other error is a backend failure.
type Verifier interface {
	Authenticate(ctx context.Context, name, key string) (*models.Token, error)
}

// UsageRecorder is told about every successful authentication.
type UsageRecorder interface {
	Record(tokenName string)
}

// Credentials extracts a token from, in order, an Authorization Bearer
// value, HTTP Basic auth, or the session cookie.
func Credentials(r *http.Request, cookieName string) (name, key string, err error) {
	if h := r.Header.Get("Authorization"); h != "" {
		if scheme, value, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return models.SplitToken(strings.TrimSpace(value))
		}
		if user, pass, ok := r.BasicAuth(); ok {
			if user == "" || pass == "" {
				return "", "", models.ErrMalformedToken
			}
			return user, pass, nil
		}
		return "", "", models.ErrMalformedToken
	}

	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return models.SplitToken(c.Value)
	}
	return "", "", ErrNoCredentials
}

// ErrNoCredentials means the request carried no token at all.
var ErrNoCredentials = errors.New("must authenticate")

// Authenticator guards handlers with token authentication.
type Authenticator struct {
	verifier   Verifier
	usage      UsageRecorder
	cookieName string
	log        *logger.Logger
}

// NewAuthenticator creates an Authenticator. usage may be nil.
func NewAuthenticator(v Verifier, usage UsageRecorder, cookieName string, log *logger.Logger) *Authenticator {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Authenticator{verifier: v, usage: usage, cookieName: cookieName, log: log}
}

// Require rejects unauthenticated requests with 401 and otherwise stores
// the Principal in the request context.
func (a *Authenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name, key, err := Credentials(r, a.cookieName)
		if err != nil {
			a.reject(w, reasonFor(err), err)
			return
		}

		tok, err := a.verifier.Authenticate(r.Context(), name, key)
		if err != nil {
			reason := reasonFor(err)
			if reason == "error" {
				a.log.Error("token lookup failed", "token", name, "error", err.Error())
				apierror.Write(w, http.StatusServiceUnavailable, apierror.CodeUnavailable, "authentication backend unavailable")
				return
			}
			a.log.Debug("authentication failed", "token", name, "reason", reason)
			a.reject(w, reason, err)
			return
		}

		if a.usage != nil {
			a.usage.Record(tok.Name)
		}

		ctx := WithPrincipal(r.Context(), &Principal{TokenName: tok.Name, UserID: tok.UserID})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) reject(w http.ResponseWriter, reason string, err error) {
	metrics.RecordAuthFailure(reason)
	msg := "invalid credentials"
	switch {
	case errors.Is(err, ErrNoCredentials):
		msg = err.Error()
	case errors.Is(err, models.ErrTokenExpired):
		msg = "token is expired"
	}
	apierror.Write(w, http.StatusUnauthorized, apierror.CodeUnauthorized, msg)
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, ErrNoCredentials):
		return "missing"
	case errors.Is(err, models.ErrMalformedToken):
		return "malformed"
	case errors.Is(err, models.ErrTokenNotFound):
		return "not_found"
	case errors.Is(err, models.ErrTokenMismatch):
		return "mismatch"
	case errors.Is(err, models.ErrTokenDisabled):
		return "disabled"
	case errors.Is(err, models.ErrTokenExpired):
		return "expired"
	default:
		return "error"
	}
}
