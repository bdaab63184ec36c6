package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clusterdeck/clusterdeck/internal/apierror"
	"github.com/clusterdeck/clusterdeck/internal/config"
	"github.com/clusterdeck/clusterdeck/internal/events"
	"github.com/clusterdeck/clusterdeck/internal/handlers"
	"github.com/clusterdeck/clusterdeck/pkg/logger"
)

const testToken = "token-admin:s3cr3t"

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", LogLevel: "error"},
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            0,
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Auth: config.AuthConfig{
			BootstrapToken: testToken,
			BootstrapUser:  "admin",
			CookieName:     "R_SESS",
		},
		Usage: config.UsageConfig{FlushInterval: time.Hour},
	}
}

func newTestServer(t *testing.T, cfg *config.Config, deps Dependencies) (*Server, *httptest.Server) {
	t.Helper()
	srv := New(cfg, logger.Nop(), deps)
	require.NoError(t, srv.Bootstrap(context.Background()))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv, ts
}

func request(t *testing.T, method, url string, headers map[string]string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func bearer() map[string]string {
	return map[string]string{"Authorization": "Bearer " + testToken}
}

func decodeError(t *testing.T, resp *http.Response) apierror.Error {
	t.Helper()
	var e apierror.Error
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
	return e
}

func TestServer_StartAndShutdown(t *testing.T) {
	srv := New(testConfig(), logger.Nop(), Dependencies{})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	require.Eventually(t, srv.IsRunning, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return srv.Addr() != "" }, time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	assert.False(t, srv.IsRunning())
	assert.False(t, srv.HealthHandler().IsReady())
	assert.NoError(t, <-errCh)
}

func TestServer_PublicEndpoints(t *testing.T) {
	_, ts := newTestServer(t, testConfig(), Dependencies{})

	for _, path := range []string{"/health", "/ready", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			resp := request(t, http.MethodGet, ts.URL+path, nil, nil)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		})
	}
}

func TestServer_ReadyReflectsChecks(t *testing.T) {
	_, ts := newTestServer(t, testConfig(), Dependencies{
		Checks: map[string]handlers.CheckFunc{
			"redis": func(context.Context) error { return errors.New("down") },
		},
	})

	resp := request(t, http.MethodGet, ts.URL+"/ready", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServer_RequiresAuth(t *testing.T) {
	_, ts := newTestServer(t, testConfig(), Dependencies{})

	tests := []struct {
		name    string
		headers map[string]string
		status  int
	}{
		{"no credentials", nil, http.StatusUnauthorized},
		{"wrong key", map[string]string{"Authorization": "Bearer token-admin:nope"}, http.StatusUnauthorized},
		{"bearer", bearer(), http.StatusOK},
		{"cookie", map[string]string{"Cookie": "R_SESS=" + testToken}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := request(t, http.MethodGet, ts.URL+"/v3/clusters", tt.headers, nil)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestServer_WebSocketUpgradeWithBadOriginForbidden(t *testing.T) {
	_, ts := newTestServer(t, testConfig(), Dependencies{})

	upgrade := func(origin string, withAuth bool) map[string]string {
		h := map[string]string{
			"Connection": "upgrade",
			"Upgrade":    "websocket",
			"Origin":     origin,
		}
		if withAuth {
			h["Authorization"] = "Bearer " + testToken
		}
		return h
	}

	for _, path := range []string{"/v3/clusters", "/v3/subscribe", "/v3", "/v3/tokens"} {
		t.Run(path, func(t *testing.T) {
			resp := request(t, http.MethodGet, ts.URL+path, upgrade("badStuff", true), nil)
			require.Equal(t, http.StatusForbidden, resp.StatusCode)
			e := decodeError(t, resp)
			assert.Equal(t, http.StatusForbidden, e.Status)
			assert.Equal(t, apierror.CodeForbidden, e.Code)
		})
	}

	t.Run("unauthenticated", func(t *testing.T) {
		resp := request(t, http.MethodGet, ts.URL+"/v3/clusters", upgrade("https://evil.example.net", false), nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}

func TestServer_ClusterCRUDPublishesEvents(t *testing.T) {
	srv, ts := newTestServer(t, testConfig(), Dependencies{})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v3/subscribe"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Authorization": {"Bearer " + testToken}})
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return srv.broadcaster.Len() == 1 }, time.Second, 10*time.Millisecond)

	resp := request(t, http.MethodPost, ts.URL+"/v3/clusters", bearer(), map[string]string{"name": "prod-east"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created handlers.ClusterResource
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, "admin", created.CreatorID)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var e events.Event
	require.NoError(t, conn.ReadJSON(&e))
	assert.Equal(t, events.Created, e.Name)
	assert.Equal(t, created.ID, e.Data.ID)

	resp = request(t, http.MethodDelete, ts.URL+"/v3/clusters/"+created.ID, bearer(), nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	require.NoError(t, conn.ReadJSON(&e))
	assert.Equal(t, events.Removed, e.Name)
}

func TestServer_PlainSubscribeRequestGetsEnvelope(t *testing.T) {
	_, ts := newTestServer(t, testConfig(), Dependencies{})

	resp := request(t, http.MethodGet, ts.URL+"/v3/subscribe", bearer(), nil)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	e := decodeError(t, resp)
	assert.Equal(t, http.StatusBadRequest, e.Status)
	assert.Equal(t, apierror.CodeBadRequest, e.Code)
}

func TestServer_UnknownRoute(t *testing.T) {
	_, ts := newTestServer(t, testConfig(), Dependencies{})

	resp := request(t, http.MethodGet, ts.URL+"/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, apierror.CodeNotFound, decodeError(t, resp).Code)
}

func TestServer_RateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, Requests: 2, Window: time.Minute}
	_, ts := newTestServer(t, cfg, Dependencies{})

	for i := 0; i < 2; i++ {
		resp := request(t, http.MethodGet, ts.URL+"/v3/clusters", bearer(), nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp := request(t, http.MethodGet, ts.URL+"/v3/clusters", bearer(), nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	resp = request(t, http.MethodGet, ts.URL+"/health", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_MetaProxy(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello from " + r.URL.Path))
	}))
	defer upstream.Close()
	host := strings.TrimPrefix(upstream.URL, "http://")

	cfg := testConfig()
	cfg.Proxy = config.ProxyConfig{Enabled: true, AllowedHosts: []string{"127.0.0.1"}, AllowPrivate: true}
	_, ts := newTestServer(t, cfg, Dependencies{})

	resp := request(t, http.MethodGet, ts.URL+"/meta/proxy/http:/"+host+"/greeting", bearer(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body bytes.Buffer
	_, _ = body.ReadFrom(resp.Body)
	assert.Equal(t, "hello from /greeting", body.String())

	resp = request(t, http.MethodGet, ts.URL+"/meta/proxy/http:/"+host+"/greeting", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = request(t, http.MethodGet, ts.URL+"/meta/proxy/https:/example.org/", bearer(), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestServer_BootstrapDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.BootstrapToken = ""
	srv := New(cfg, logger.Nop(), Dependencies{})
	defer srv.Shutdown(context.Background())

	assert.NoError(t, srv.Bootstrap(context.Background()))
}
