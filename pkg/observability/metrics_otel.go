package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics holds OpenTelemetry metric instruments. They export the same
// signals as the Prometheus registry over OTLP for deployments that ship
// telemetry to a collector instead of scraping.
type OTelMetrics struct {
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	dbConnectionsActive metric.Int64UpDownCounter
	dbQueriesTotal      metric.Int64Counter
	dbQueryDuration     metric.Float64Histogram

	roleTransitionsTotal  metric.Int64Counter
	requestsReviewedTotal metric.Int64Counter
	accessDeniedTotal     metric.Int64Counter
}

// NewOTelMetrics creates the metric instruments on the global meter provider.
func NewOTelMetrics() (*OTelMetrics, error) {
	meter := otel.Meter("github.com/guildhall-io/guildhall")

	m := &OTelMetrics{}
	var err error

	m.httpRequestsTotal, err = meter.Int64Counter(
		"http.server.requests",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http requests counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http.server.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http duration histogram: %w", err)
	}

	m.dbConnectionsActive, err = meter.Int64UpDownCounter(
		"db.connections.active",
		metric.WithDescription("Number of active database connections"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create db connections counter: %w", err)
	}

	m.dbQueriesTotal, err = meter.Int64Counter(
		"db.queries.total",
		metric.WithDescription("Total number of database queries"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create db queries counter: %w", err)
	}

	m.dbQueryDuration, err = meter.Float64Histogram(
		"db.query.duration",
		metric.WithDescription("Database query duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create db query duration histogram: %w", err)
	}

	m.roleTransitionsTotal, err = meter.Int64Counter(
		"governance.role_transitions.total",
		metric.WithDescription("Total number of members moved to a new role"),
		metric.WithUnit("{member}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create role transitions counter: %w", err)
	}

	m.requestsReviewedTotal, err = meter.Int64Counter(
		"governance.permission_requests.reviewed",
		metric.WithDescription("Total number of permission requests reviewed"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create requests reviewed counter: %w", err)
	}

	m.accessDeniedTotal, err = meter.Int64Counter(
		"governance.access_denied.total",
		metric.WithDescription("Total number of requests denied by the authorization gate"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create access denied counter: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request.
func (m *OTelMetrics) RecordHTTPRequest(ctx context.Context, method, route string, statusCode int, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", statusCode),
	}

	m.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordDBQuery records a database query.
func (m *OTelMetrics) RecordDBQuery(ctx context.Context, operation string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("db.operation", operation),
		attribute.Bool("error", err != nil),
	}

	m.dbQueriesTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.dbQueryDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// UpdateDBConnections records a change in active connection count.
func (m *OTelMetrics) UpdateDBConnections(ctx context.Context, delta int) {
	m.dbConnectionsActive.Add(ctx, int64(delta))
}

// RecordRoleTransition records members moved to a new role.
func (m *OTelMetrics) RecordRoleTransition(ctx context.Context, newRole string, count int) {
	m.roleTransitionsTotal.Add(ctx, int64(count), metric.WithAttributes(
		attribute.String("governance.new_role", newRole),
	))
}

// RecordRequestReview records a permission request review decision.
func (m *OTelMetrics) RecordRequestReview(ctx context.Context, outcome string) {
	m.requestsReviewedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("governance.outcome", outcome),
	))
}

// RecordAccessDenied records a denial from the authorization gate.
func (m *OTelMetrics) RecordAccessDenied(ctx context.Context, operation string) {
	m.accessDeniedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("governance.operation", operation),
	))
}

// OTelHTTPMiddleware instruments requests with the OTLP pipeline. Used in
// addition to the Prometheus middleware when OTel export is enabled.
func OTelHTTPMiddleware(metrics *OTelMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			metrics.RecordHTTPRequest(r.Context(), r.Method, routePattern(r), rw.statusCode, time.Since(start))
		})
	}
}
