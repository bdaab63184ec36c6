// Package httpproxy forwards /meta/proxy requests to allow-listed external
// hosts on behalf of the UI.
package httpproxy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"regexp"
	"strings"

	"github.com/clusterdeck/clusterdeck/internal/apierror"
	"github.com/clusterdeck/clusterdeck/internal/metrics"
	"github.com/clusterdeck/clusterdeck/internal/security"
	"github.com/clusterdeck/clusterdeck/pkg/logger"
)

// DefaultPrefix is the path the proxy is mounted on.
const DefaultPrefix = "/meta/proxy/"

// Header names used to tunnel credentials and cookies through the proxy.
const (
	HeaderForwardProto = "X-Forwarded-Proto"
	HeaderAPIAuth      = "X-API-Auth-Header"
	HeaderAPICookie    = "X-Api-Cookie-Header"
	HeaderAPISetCookie = "X-Api-Set-Cookie-Header"
)

// valuePrefix is stripped from forwarded header values.
const valuePrefix = "rancher:"

var (
	httpStart  = regexp.MustCompile("^http:/([^/])")
	httpsStart = regexp.MustCompile("^https:/([^/])")

	// Never copied to the outbound request. Authorization and Cookie carry
	// our own credentials.
	droppedHeaders = []string{"Host", "Transfer-Encoding", "Content-Length", HeaderAPIAuth, "Authorization", "Cookie"}
)

type destKey struct{}

// Proxy is an http.Handler that forwards to the destination encoded in
// the request path.
type Proxy struct {
	prefix    string
	sanitizer *security.Sanitizer
	log       *logger.Logger
	rp        *httputil.ReverseProxy
}

// Option configures a Proxy.
type Option func(*Proxy)

// WithTransport sets the outbound transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(p *Proxy) { p.rp.Transport = rt }
}

// WithPrefix sets the mount path. It must end in a slash.
func WithPrefix(prefix string) Option {
	return func(p *Proxy) { p.prefix = prefix }
}

// New creates a Proxy that forwards only to destinations sanitizer accepts.
func New(sanitizer *security.Sanitizer, log *logger.Logger, opts ...Option) *Proxy {
	if log == nil {
		log = logger.Nop()
	}
	p := &Proxy{prefix: DefaultPrefix, sanitizer: sanitizer, log: log}
	p.rp = &httputil.ReverseProxy{
		Rewrite:        p.rewrite,
		ModifyResponse: replaceSetCookies,
		ErrorHandler:   p.upstreamError,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ServeHTTP validates the destination and forwards the request.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	dest, err := p.Destination(r)
	if err != nil {
		p.reject(w, r, err)
		return
	}

	metrics.RecordProxyRequest("forwarded")
	ctx := context.WithValue(r.Context(), destKey{}, dest)
	p.rp.ServeHTTP(w, r.WithContext(ctx))
}

// Destination extracts and validates the target URL of r. Paths of the
// form "https:/host/..." are what a cleaned "https://host/..." becomes;
// a bare host defaults to https.
func (p *Proxy) Destination(r *http.Request) (*url.URL, error) {
	path := r.URL.EscapedPath()
	idx := strings.Index(path, p.prefix)
	if idx < 0 {
		return nil, security.ErrEmptyURL
	}
	dest := path[idx+len(p.prefix):]

	switch {
	case httpsStart.MatchString(dest):
		dest = httpsStart.ReplaceAllString(dest, "https://$1")
	case httpStart.MatchString(dest):
		dest = httpStart.ReplaceAllString(dest, "http://$1")
	case strings.HasPrefix(dest, "http://"), strings.HasPrefix(dest, "https://"):
	default:
		dest = "https://" + dest
	}

	u, err := p.sanitizer.Parse(dest)
	if err != nil {
		return nil, err
	}
	u.RawQuery = r.URL.RawQuery
	return u, nil
}

func (p *Proxy) rewrite(pr *httputil.ProxyRequest) {
	dest := pr.In.Context().Value(destKey{}).(*url.URL)

	out := http.Header{}
	if pr.In.TLS != nil {
		out.Set(HeaderForwardProto, "https")
	}
	if auth := pr.In.Header.Get(HeaderAPIAuth); auth != "" {
		out.Set("Authorization", strings.TrimPrefix(auth, valuePrefix))
	}
	for name, values := range pr.Out.Header {
		if dropped(name) {
			continue
		}
		copied := make([]string, len(values))
		for i, v := range values {
			copied[i] = strings.TrimPrefix(v, valuePrefix)
		}
		out[name] = copied
	}
	if cookie := out.Get(HeaderAPICookie); cookie != "" {
		out.Set("Cookie", cookie)
	}
	out.Del(HeaderAPICookie)

	pr.Out.Header = out
	pr.Out.URL = dest
	pr.Out.Host = dest.Host
}

func dropped(name string) bool {
	for _, h := range droppedHeaders {
		if strings.EqualFold(h, name) {
			return true
		}
	}
	return false
}

// replaceSetCookies keeps upstream cookies away from the browser's cookie
// jar for our origin.
func replaceSetCookies(res *http.Response) error {
	res.Header.Del(HeaderAPISetCookie)
	for _, c := range res.Header.Values("Set-Cookie") {
		res.Header.Add(HeaderAPISetCookie, c)
	}
	res.Header.Del("Set-Cookie")
	return nil
}

func (p *Proxy) reject(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, security.ErrHostNotAllowed),
		errors.Is(err, security.ErrBlockedHost),
		errors.Is(err, security.ErrPrivateIP):
		metrics.RecordProxyRequest("denied")
		p.log.Info("proxy destination denied", "path", r.URL.Path, "reason", err.Error())
		apierror.Write(w, http.StatusForbidden, apierror.CodeForbidden, err.Error())
	default:
		metrics.RecordProxyRequest("invalid")
		apierror.Write(w, http.StatusUnprocessableEntity, apierror.CodeInvalidFormat, err.Error())
	}
}

func (p *Proxy) upstreamError(w http.ResponseWriter, r *http.Request, err error) {
	metrics.RecordProxyRequest("error")
	p.log.Warn("proxy upstream failed", "path", r.URL.Path, "error", err.Error())
	apierror.Write(w, http.StatusBadGateway, apierror.CodeServerError, "upstream request failed")
}
