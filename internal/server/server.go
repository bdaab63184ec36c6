// Package server provides the HTTP server implementation.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/clusterdeck/clusterdeck/internal/apierror"
	"github.com/clusterdeck/clusterdeck/internal/auth"
	"github.com/clusterdeck/clusterdeck/internal/config"
	"github.com/clusterdeck/clusterdeck/internal/events"
	"github.com/clusterdeck/clusterdeck/internal/handlers"
	"github.com/clusterdeck/clusterdeck/internal/httpproxy"
	"github.com/clusterdeck/clusterdeck/internal/metrics"
	"github.com/clusterdeck/clusterdeck/internal/middleware"
	"github.com/clusterdeck/clusterdeck/internal/ratelimit"
	"github.com/clusterdeck/clusterdeck/internal/repository"
	"github.com/clusterdeck/clusterdeck/internal/security"
	"github.com/clusterdeck/clusterdeck/internal/services"
	"github.com/clusterdeck/clusterdeck/internal/usage"
	"github.com/clusterdeck/clusterdeck/pkg/logger"
)

// Dependencies are the storage backends and optional overrides the server
// is built on. Nil repositories fall back to in-memory ones.
type Dependencies struct {
	Clusters repository.ClusterRepository
	Tokens   repository.TokenRepository
	// Limiter replaces the in-memory limiter, e.g. with a Redis one.
	Limiter ratelimit.Limiter
	// Checks are added to /ready.
	Checks map[string]handlers.CheckFunc
	// ProxyTransport overrides the meta proxy's outbound transport.
	ProxyTransport http.RoundTripper
}

// Server represents the HTTP server.
type Server struct {
	cfg        *config.Config
	log        *logger.Logger
	httpServer *http.Server

	healthHandler *handlers.HealthHandler
	broadcaster   *events.Broadcaster
	clusters      *services.ClusterServiceImpl
	tokens        *services.TokenServiceImpl
	usage         *usage.Counter
	rateLimiter   ratelimit.Limiter

	listener net.Listener
	running  bool
	mu       sync.RWMutex
}

// New creates a new Server instance.
func New(cfg *config.Config, log *logger.Logger, deps Dependencies) *Server {
	if deps.Clusters == nil {
		deps.Clusters = repository.NewMemoryClusterRepository()
	}
	if deps.Tokens == nil {
		deps.Tokens = repository.NewMemoryTokenRepository()
	}

	s := &Server{
		cfg:           cfg,
		log:           log,
		healthHandler: handlers.NewHealthHandler(),
		broadcaster:   events.NewBroadcaster(events.DefaultBuffer),
	}
	s.clusters = services.NewClusterService(deps.Clusters, s.broadcaster, log)
	s.tokens = services.NewTokenService(deps.Tokens, cfg.Auth.DefaultTokenTTL, log)
	s.usage = usage.NewCounter(usage.ConfigFrom(cfg.Usage), usage.NewRepositoryFlusher(deps.Tokens, log))

	s.healthHandler.AddCheck("clusters", deps.Clusters.HealthCheck)
	s.healthHandler.AddCheck("tokens", deps.Tokens.HealthCheck)
	for name, check := range deps.Checks {
		s.healthHandler.AddCheck(name, check)
	}

	s.rateLimiter = deps.Limiter
	if s.rateLimiter == nil && cfg.Rate.Enabled {
		s.rateLimiter = ratelimit.NewMemoryLimiter(ratelimit.Config{
			Requests: cfg.Rate.Requests,
			Window:   cfg.Rate.Window,
		})
	}

	checker := security.NewOriginChecker(cfg.Origin.Allowed)
	authn := auth.NewAuthenticator(s.tokens, s.usage, cfg.Auth.CookieName, log)

	mux := http.NewServeMux()
	s.registerRoutes(mux, authn, checker)

	var proxy http.Handler
	if cfg.Proxy.Enabled {
		proxy = authn.Require(s.newProxy(deps.ProxyTransport))
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      s.buildMiddlewareChain(dispatch(mux, proxy), checker),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s
}

func (s *Server) newProxy(transport http.RoundTripper) *httpproxy.Proxy {
	sanitizer := security.NewSanitizer(security.Config{
		AllowedHosts:    s.cfg.Proxy.AllowedHosts,
		AllowPrivateIPs: s.cfg.Proxy.AllowPrivate,
	})
	var opts []httpproxy.Option
	if transport != nil {
		opts = append(opts, httpproxy.WithTransport(transport))
	}
	return httpproxy.New(sanitizer, s.log, opts...)
}

// dispatch sends proxy paths around the mux, which would otherwise
// redirect the "//" inside an embedded destination URL.
func dispatch(mux *http.ServeMux, proxy http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if proxy != nil && strings.HasPrefix(r.URL.Path, httpproxy.DefaultPrefix) {
			proxy.ServeHTTP(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	})
}

// buildMiddlewareChain wraps every route. The origin guard sits before
// the rate limiter and route auth so a forbidden upgrade is answered 403
// whatever else is wrong with the request.
func (s *Server) buildMiddlewareChain(handler http.Handler, checker *security.OriginChecker) http.Handler {
	chain := middleware.New(
		middleware.Metrics(),
		middleware.RequestID(),
		middleware.ClientIP(s.cfg.Rate.TrustProxy, s.cfg.Rate.TrustedProxies),
		middleware.Logging(s.log),
		middleware.OriginGuard(checker, s.log),
	)

	if s.rateLimiter != nil {
		chain = chain.Append(middleware.RateLimit(s.rateLimiter, middleware.RateLimitConfig{
			CookieName: s.cfg.Auth.CookieName,
			Exempt:     []string{"/health", "/ready", "/metrics"},
		}, s.log))

		s.log.Info("rate limiting enabled",
			"requests", s.cfg.Rate.Requests,
			"window", s.cfg.Rate.Window.String(),
		)
	}

	return chain.Then(handler)
}

// registerRoutes sets up the HTTP routes.
func (s *Server) registerRoutes(mux *http.ServeMux, authn *auth.Authenticator, checker *security.OriginChecker) {
	mux.HandleFunc("GET /health", s.healthHandler.Health)
	mux.HandleFunc("GET /ready", s.healthHandler.Ready)
	mux.Handle("GET /metrics", metrics.Handler())

	clusters := handlers.NewClusterHandler(s.clusters)
	tokens := handlers.NewTokenHandler(s.tokens)
	subscribe := handlers.NewSubscribeHandler(s.broadcaster, checker, s.log)

	protected := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, authn.Require(h))
	}

	protected("GET /v3", handlers.Root)
	protected("GET /v3/clusters", clusters.List)
	protected("POST /v3/clusters", clusters.Create)
	protected("GET /v3/clusters/{id}", clusters.Get)
	protected("PUT /v3/clusters/{id}", clusters.Update)
	protected("DELETE /v3/clusters/{id}", clusters.Delete)
	protected("GET /v3/tokens", tokens.List)
	protected("POST /v3/tokens", tokens.Create)
	protected("DELETE /v3/tokens/{name}", tokens.Delete)
	protected("GET /v3/subscribe", subscribe.Subscribe)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		apierror.Write(w, http.StatusNotFound, apierror.CodeNotFound, "not found")
	})
}

// Bootstrap installs the configured bootstrap token, if any.
func (s *Server) Bootstrap(ctx context.Context) error {
	if s.cfg.Auth.BootstrapToken == "" {
		return nil
	}
	return s.tokens.EnsureBootstrap(ctx, s.cfg.Auth.BootstrapToken, s.cfg.Auth.BootstrapUser)
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.Server.Address())
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.running = true
	s.mu.Unlock()

	s.log.Info("server starting", "address", listener.Addr().String())

	err = s.httpServer.Serve(listener)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server. Subscribers are disconnected
// first since hijacked connections are not tracked by http.Server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("server shutting down")
	s.healthHandler.SetReady(false)

	s.broadcaster.Close()
	err := s.httpServer.Shutdown(ctx)

	s.usage.Stop()
	if s.rateLimiter != nil {
		if closeErr := s.rateLimiter.Close(); closeErr != nil {
			s.log.Error("failed to close rate limiter", "error", closeErr.Error())
		}
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	if err != nil {
		s.log.Error("shutdown error", "error", err.Error())
		return err
	}

	s.log.Info("server stopped")
	return nil
}

// IsRunning returns whether the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the server's address.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// HealthHandler returns the health handler.
func (s *Server) HealthHandler() *handlers.HealthHandler {
	return s.healthHandler
}

// Tokens returns the token service.
func (s *Server) Tokens() *services.TokenServiceImpl {
	return s.tokens
}

// Clusters returns the cluster service.
func (s *Server) Clusters() *services.ClusterServiceImpl {
	return s.clusters
}
