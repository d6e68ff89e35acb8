package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the governance service.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Governance metrics
	RoleTransitionsTotal   *prometheus.CounterVec
	RuleViolationsTotal    *prometheus.CounterVec
	GrantsTotal            *prometheus.CounterVec
	RequestsSubmittedTotal prometheus.Counter
	RequestsReviewedTotal  *prometheus.CounterVec
	AccessDeniedTotal      *prometheus.CounterVec
	NotificationsTotal     *prometheus.CounterVec
	RateLimitedTotal       prometheus.Counter

	// Database connection pool metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
	DBConnectionsWait   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guildhall_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "guildhall_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "guildhall_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "path"},
		),

		RoleTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guildhall_role_transitions_total",
				Help: "Total number of members moved to a new role",
			},
			[]string{"new_role"},
		),
		RuleViolationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guildhall_rule_violations_total",
				Help: "Total number of role transitions rejected, by rule",
			},
			[]string{"rule"},
		),
		GrantsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guildhall_grants_total",
				Help: "Total number of permission grant and revoke operations",
			},
			[]string{"action"},
		),
		RequestsSubmittedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "guildhall_permission_requests_submitted_total",
				Help: "Total number of permission requests submitted",
			},
		),
		RequestsReviewedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guildhall_permission_requests_reviewed_total",
				Help: "Total number of permission requests reviewed, by outcome",
			},
			[]string{"outcome"},
		),
		AccessDeniedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guildhall_access_denied_total",
				Help: "Total number of requests denied by the authorization gate",
			},
			[]string{"operation"},
		),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guildhall_notifications_total",
				Help: "Total number of notifications delivered, by type",
			},
			[]string{"type"},
		),
		RateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "guildhall_rate_limited_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "guildhall_db_connections_active",
				Help: "Number of open database connections in use",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "guildhall_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		DBConnectionsWait: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "guildhall_db_connections_wait_count",
				Help: "Total number of connections waited for",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.RoleTransitionsTotal,
		m.RuleViolationsTotal,
		m.GrantsTotal,
		m.RequestsSubmittedTotal,
		m.RequestsReviewedTotal,
		m.AccessDeniedTotal,
		m.NotificationsTotal,
		m.RateLimitedTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.DBConnectionsWait,
	)

	return m
}

// UpdateDBStats copies connection pool statistics into the gauges.
func (m *Metrics) UpdateDBStats(stats sql.DBStats) {
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
	m.DBConnectionsWait.Set(float64(stats.WaitCount))
}

// metricsResponseWriter wraps http.ResponseWriter to capture status and size.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *metricsResponseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// routePattern returns the mux route template so metric cardinality stays
// bounded, falling back to the raw path for unrouted requests.
func routePattern(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &metricsResponseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			path := routePattern(r)
			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
			metrics.HTTPResponseSize.WithLabelValues(r.Method, path).Observe(float64(rw.bytesWritten))

			if rw.statusCode == http.StatusTooManyRequests {
				metrics.RateLimitedTotal.Inc()
			}
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint.
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
