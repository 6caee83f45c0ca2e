package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Permission evaluation metrics
	PermissionChecksTotal   *prometheus.CounterVec
	PermissionCacheRebuilds prometheus.Counter

	// Query parser metrics
	ParseCacheHitsTotal   prometheus.Counter
	ParseCacheMissesTotal prometheus.Counter
	ParseErrorsTotal      prometheus.Counter

	// Maintenance metrics
	ExpiredBlocksDeleted    prometheus.Counter
	StaleInvitationsDeleted prometheus.Counter

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weblate_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "weblate_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		PermissionChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weblate_permission_checks_total",
				Help: "Total number of permission checks",
			},
			[]string{"permission", "result"},
		),
		PermissionCacheRebuilds: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "weblate_permission_cache_rebuilds_total",
				Help: "Total number of per-user permission cache rebuilds",
			},
		),
		ParseCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "weblate_parse_cache_hits_total",
				Help: "Total number of query parse cache hits",
			},
		),
		ParseCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "weblate_parse_cache_misses_total",
				Help: "Total number of query parse cache misses",
			},
		),
		ParseErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "weblate_parse_errors_total",
				Help: "Total number of rejected search queries",
			},
		),
		ExpiredBlocksDeleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "weblate_expired_blocks_deleted_total",
				Help: "Total number of expired user blocks removed",
			},
		),
		StaleInvitationsDeleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "weblate_stale_invitations_deleted_total",
				Help: "Total number of stale invitations removed",
			},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "weblate_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "weblate_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.PermissionChecksTotal,
		m.PermissionCacheRebuilds,
		m.ParseCacheHitsTotal,
		m.ParseCacheMissesTotal,
		m.ParseErrorsTotal,
		m.ExpiredBlocksDeleted,
		m.StaleInvitationsDeleted,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// RecordPermissionCheck counts one permission evaluation.
func (m *Metrics) RecordPermissionCheck(permission string, allowed bool) {
	result := "denied"
	if allowed {
		result = "allowed"
	}
	m.PermissionChecksTotal.WithLabelValues(permission, result).Inc()
}

// UpdateDBStats copies connection pool stats into the gauges.
func (m *Metrics) UpdateDBStats(stats sql.DBStats) {
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus
// metrics.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
		})
	}
}

// MetricsHandler serves the registry over HTTP.
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
