package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResponseWriter(t *testing.T) {
	t.Run("defaults to 200 OK", func(t *testing.T) {
		rw := newResponseWriter(httptest.NewRecorder())
		assert.Equal(t, http.StatusOK, rw.statusCode)
	})

	t.Run("captures first written status code", func(t *testing.T) {
		rec := httptest.NewRecorder()
		rw := newResponseWriter(rec)

		rw.WriteHeader(http.StatusNotFound)
		rw.WriteHeader(http.StatusInternalServerError)

		assert.Equal(t, http.StatusNotFound, rw.statusCode)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("hijack fails when underlying writer cannot hijack", func(t *testing.T) {
		rw := newResponseWriter(httptest.NewRecorder())
		_, _, err := rw.Hijack()
		assert.Error(t, err)
	})

	t.Run("unwrap returns underlying writer", func(t *testing.T) {
		rec := httptest.NewRecorder()
		assert.Same(t, rec, newResponseWriter(rec).Unwrap())
	})
}

func TestMetrics(t *testing.T) {
	handler := Metrics()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v3/clusters/c-abcde", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "short and stout", rec.Body.String())
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/health", "/health"},
		{"/ready", "/ready"},
		{"/metrics", "/metrics"},
		{"/v3", "/v3"},
		{"/v3/clusters", "/v3/clusters"},
		{"/v3/clusters/c-x8k2p", "/v3/clusters/{id}"},
		{"/v3/tokens", "/v3/tokens"},
		{"/v3/tokens/token-abcde", "/v3/tokens/{name}"},
		{"/v3/subscribe", "/v3/subscribe"},
		{"/meta/proxy/https:/api.github.com/repos", "/meta/proxy/{dest}"},
		{"/random/path", "/other"},
		{"/", "/other"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizePath(tt.path))
		})
	}
}
