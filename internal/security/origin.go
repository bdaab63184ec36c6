package security

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

// IsWebSocketUpgrade reports whether r asks to switch to the WebSocket
// protocol.
func IsWebSocketUpgrade(r *http.Request) bool {
	return websocket.IsWebSocketUpgrade(r)
}

// originPattern is one ORIGIN_ALLOWED entry. An empty scheme matches any
// scheme.
type originPattern struct {
	scheme string
	host   string
}

// OriginChecker decides whether a browser origin may open a WebSocket.
// An origin is allowed when its host equals the request Host or when it
// matches an allow-list entry. Entries are exact origins such as
// "https://ui.example.com" or host patterns such as "https://*.example.com"
// and "*.example.com".
type OriginChecker struct {
	patterns []originPattern
}

// NewOriginChecker builds a checker. Blank entries are ignored.
func NewOriginChecker(allowed []string) *OriginChecker {
	c := &OriginChecker{}
	for _, raw := range allowed {
		raw = strings.ToLower(strings.TrimSpace(raw))
		raw = strings.TrimSuffix(raw, "/")
		if raw == "" {
			continue
		}
		p := originPattern{host: raw}
		if scheme, host, ok := strings.Cut(raw, "://"); ok {
			p = originPattern{scheme: scheme, host: host}
		}
		c.patterns = append(c.patterns, p)
	}
	return c
}

// Allowed reports whether origin may connect to a server reached as
// requestHost. An empty origin is allowed; non-browser clients omit it.
func (c *OriginChecker) Allowed(origin, requestHost string) bool {
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)

	if requestHost != "" && host == strings.ToLower(requestHost) {
		return true
	}

	for _, p := range c.patterns {
		if p.scheme != "" && p.scheme != scheme {
			continue
		}
		if MatchHost(p.host, host) {
			return true
		}
	}
	return false
}

// CheckOrigin has the signature of websocket.Upgrader.CheckOrigin.
func (c *OriginChecker) CheckOrigin(r *http.Request) bool {
	return c.Allowed(r.Header.Get("Origin"), r.Host)
}

// MatchHost matches host against pattern. A leading "*" matches any
// non-empty prefix, so "*.example.com" matches "a.example.com" but not
// "example.com".
func MatchHost(pattern, host string) bool {
	pattern = strings.ToLower(pattern)
	host = strings.ToLower(host)
	if suffix, ok := strings.CutPrefix(pattern, "*"); ok {
		return len(host) > len(suffix) && strings.HasSuffix(host, suffix)
	}
	return pattern == host
}
