package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestID(t *testing.T) {
	run := func(header string) (ctxID string, respID string) {
		h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctxID = GetRequestID(r.Context())
		}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set(HeaderXRequestID, header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return ctxID, rec.Header().Get(HeaderXRequestID)
	}

	t.Run("generates uuid when absent", func(t *testing.T) {
		ctxID, respID := run("")
		_, err := uuid.Parse(ctxID)
		require.NoError(t, err)
		assert.Equal(t, ctxID, respID)
	})

	t.Run("propagates valid id", func(t *testing.T) {
		ctxID, respID := run("abc-123_XYZ")
		assert.Equal(t, "abc-123_XYZ", ctxID)
		assert.Equal(t, "abc-123_XYZ", respID)
	})

	t.Run("replaces unsafe id", func(t *testing.T) {
		ctxID, _ := run("bad id\nwith newline")
		assert.NotEqual(t, "bad id\nwith newline", ctxID)
	})

	t.Run("replaces overlong id", func(t *testing.T) {
		long := strings.Repeat("a", requestIDMaxLength+1)
		ctxID, _ := run(long)
		assert.NotEqual(t, long, ctxID)
	})
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		trustProxy bool
		trusted    []string
		remote     string
		headers    map[string]string
		expected   string
	}{
		{"remote addr without proxy trust", false, nil, "10.0.0.1:5555", map[string]string{HeaderXForwardedFor: "1.2.3.4"}, "10.0.0.1"},
		{"first forwarded address", true, nil, "10.0.0.1:5555", map[string]string{HeaderXForwardedFor: "1.2.3.4, 10.0.0.2"}, "1.2.3.4"},
		{"real ip fallback", true, nil, "10.0.0.1:5555", map[string]string{HeaderXRealIP: "5.6.7.8"}, "5.6.7.8"},
		{"garbage forwarded header ignored", true, nil, "10.0.0.1:5555", map[string]string{HeaderXForwardedFor: "not-an-ip"}, "10.0.0.1"},
		{"untrusted peer ignored", true, []string{"10.0.0.9"}, "10.0.0.1:5555", map[string]string{HeaderXForwardedFor: "1.2.3.4"}, "10.0.0.1"},
		{"trusted peer honoured", true, []string{"10.0.0.1"}, "10.0.0.1:5555", map[string]string{HeaderXForwardedFor: "1.2.3.4"}, "1.2.3.4"},
		{"remote addr without port", false, nil, "10.0.0.1", nil, "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := ClientIP(tt.trustProxy, tt.trusted)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = GetClientIP(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			assert.Equal(t, tt.expected, got)
		})
	}
}
