// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, route and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration measures request latency in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// ActiveConnections tracks in-flight requests, including open WebSockets.
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_connections",
			Help: "Number of active connections",
		},
	)

	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of token cache hits",
		},
	)

	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of token cache misses",
		},
	)

	// DBQueryDuration measures database query latency by operation.
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// OriginRejectedTotal counts WebSocket upgrades refused for their Origin.
	OriginRejectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_origin_rejected_total",
			Help: "Total number of WebSocket upgrade requests rejected for a disallowed Origin",
		},
	)

	// AuthFailuresTotal counts rejected credentials by reason.
	AuthFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_failures_total",
			Help: "Total number of failed authentications",
		},
		[]string{"reason"},
	)

	WebSocketSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_subscribers",
			Help: "Number of connected event subscribers",
		},
	)

	// ClusterEventsTotal counts published cluster events by type.
	ClusterEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cluster_events_total",
			Help: "Total number of cluster change events published",
		},
		[]string{"type"},
	)

	// EventsDroppedTotal counts events not delivered to slow subscribers.
	EventsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "events_dropped_total",
			Help: "Total number of events dropped for slow subscribers",
		},
	)

	// ProxyRequestsTotal counts meta proxy requests by outcome.
	ProxyRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxy_requests_total",
			Help: "Total number of meta proxy requests",
		},
		[]string{"outcome"},
	)

	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_limited_total",
			Help: "Total number of rate-limited requests",
		},
	)

	// IDCollisionsTotal counts generated identifiers that were already taken.
	IDCollisionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "id_collisions_total",
			Help: "Total number of generated identifiers that collided with existing ones",
		},
	)

	// DBPoolConnections reports database pool connections by state.
	DBPoolConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "db_pool_connections",
			Help: "Database pool connections by state",
		},
		[]string{"state"},
	)

	// TokenUsageFlushedTotal counts token uses written to storage.
	TokenUsageFlushedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "token_usage_flushed_total",
			Help: "Total number of token uses persisted",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records an HTTP request metric.
func RecordRequest(method, path string, status int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func RecordCacheHit() {
	CacheHitsTotal.Inc()
}

func RecordCacheMiss() {
	CacheMissesTotal.Inc()
}

// RecordDBQuery records the time since start for operation.
func RecordDBQuery(operation string, start time.Time) {
	DBQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func RecordOriginRejected() {
	OriginRejectedTotal.Inc()
}

func RecordAuthFailure(reason string) {
	AuthFailuresTotal.WithLabelValues(reason).Inc()
}

func RecordClusterEvent(eventType string) {
	ClusterEventsTotal.WithLabelValues(eventType).Inc()
}

func RecordEventDropped() {
	EventsDroppedTotal.Inc()
}

func RecordProxyRequest(outcome string) {
	ProxyRequestsTotal.WithLabelValues(outcome).Inc()
}

func RecordRateLimited() {
	RateLimitedTotal.Inc()
}

func RecordTokenUsageFlushed(n int) {
	TokenUsageFlushedTotal.Add(float64(n))
}

func RecordIDCollision() {
	IDCollisionsTotal.Inc()
}

// RecordDBPool publishes a snapshot of pool connection counts.
func RecordDBPool(max, total, idle, acquired int32) {
	DBPoolConnections.WithLabelValues("max").Set(float64(max))
	DBPoolConnections.WithLabelValues("total").Set(float64(total))
	DBPoolConnections.WithLabelValues("idle").Set(float64(idle))
	DBPoolConnections.WithLabelValues("acquired").Set(float64(acquired))
}
