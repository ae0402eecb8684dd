package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/LordSimal/gin-sentry/internal/database"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Query log metrics
	QueriesTotal         *prometheus.CounterVec
	QueryDuration        *prometheus.HistogramVec
	SchemaQueriesSkipped *prometheus.CounterVec
	QuerySpans           *prometheus.CounterVec

	// Capture metrics
	CapturesTotal *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TotalRequests int64   `json:"total_requests"`
	TotalErrors   int64   `json:"total_errors"`
	TotalQueries  int64   `json:"total_queries"`
	TotalCaptures int64   `json:"total_captures"`
	TotalDuration float64 `json:"total_duration_seconds"` // sum of all request durations
	RequestCount  int64   `json:"request_count"`          // count for averaging
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// NewMetrics creates a metrics collector registered with reg. A nil reg uses
// the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m := &Metrics{startTime: time.Now()}

	// HTTP metrics
	m.RequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentry_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	m.RequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentry_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)
	m.RequestSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentry_http_request_size_bytes",
			Help:    "HTTP request size in bytes",
			Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
		},
		[]string{"method", "path"},
	)
	m.ResponseSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentry_http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
		},
		[]string{"method", "path"},
	)

	// Query log metrics
	m.QueriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentry_db_queries_total",
			Help: "Total number of queries kept by request query logs",
		},
		[]string{"connection", "role"},
	)
	m.QueryDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentry_db_query_duration_seconds",
			Help:    "Query duration in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 5},
		},
		[]string{"connection", "role"},
	)
	m.SchemaQueriesSkipped = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentry_db_schema_queries_skipped_total",
			Help: "Schema reflection queries left out of query logs",
		},
		[]string{"connection"},
	)
	m.QuerySpans = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentry_db_query_spans_total",
			Help: "Queries mapped onto transaction spans",
		},
		[]string{"connection", "op"},
	)

	// Capture metrics
	m.CapturesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentry_captures_total",
			Help: "Exceptions and runtime errors sent to the tracing backend",
		},
		[]string{"kind"},
	)

	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "sentry_uptime_seconds",
			Help: "Service uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.TotalDuration += duration.Seconds()
	m.snapshot.RequestCount++
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// QueryLogged implements database.Observer.
func (m *Metrics) QueryLogged(connection string, role database.Role, took time.Duration) {
	m.QueriesTotal.WithLabelValues(connection, string(role)).Inc()
	m.QueryDuration.WithLabelValues(connection, string(role)).Observe(took.Seconds())

	m.mu.Lock()
	m.snapshot.TotalQueries++
	m.mu.Unlock()
}

// SchemaQuerySkipped implements database.Observer.
func (m *Metrics) SchemaQuerySkipped(connection string) {
	m.SchemaQueriesSkipped.WithLabelValues(connection).Inc()
}

// SpanMapped implements database.Observer.
func (m *Metrics) SpanMapped(connection, op string) {
	m.QuerySpans.WithLabelValues(connection, op).Inc()
}

// Captured implements capture.Observer.
func (m *Metrics) Captured(kind string) {
	m.CapturesTotal.WithLabelValues(kind).Inc()

	m.mu.Lock()
	m.snapshot.TotalCaptures++
	m.mu.Unlock()
}

// Snapshot returns the current totals.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.snapshot
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
