package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WorkflowMetrics records stocktake workflow and HTTP activity.
type WorkflowMetrics struct {
	ingestRows      *prometheus.CounterVec
	ingestDuration  prometheus.Histogram
	transitions     *prometheus.CounterVec
	auditFailures   *prometheus.CounterVec
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewWorkflowMetrics registers the workflow metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewWorkflowMetrics(reg prometheus.Registerer) *WorkflowMetrics {
	if reg == nil {
		return &WorkflowMetrics{}
	}
	ingestRows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_ingest_rows_total",
		Help: "Catalog rows processed by ingestion, by outcome.",
	}, []string{"outcome"})
	ingestDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_ingest_duration_seconds",
		Help:    "Duration of catalog ingestion transactions in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "count_record_transitions_total",
		Help: "Count record lifecycle operations, by action.",
	}, []string{"action"})
	auditFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_write_failures_total",
		Help: "Audit events that could not be persisted.",
	}, []string{"action"})
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests served, by route and status.",
	}, []string{"method", "route", "status"})
	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
	reg.MustRegister(ingestRows, ingestDuration, transitions, auditFailures, requests, requestDuration)
	return &WorkflowMetrics{
		ingestRows:      ingestRows,
		ingestDuration:  ingestDuration,
		transitions:     transitions,
		auditFailures:   auditFailures,
		requests:        requests,
		requestDuration: requestDuration,
	}
}

// ObserveIngest records one completed ingestion.
func (m *WorkflowMetrics) ObserveIngest(inserted, duplicates int, duration time.Duration) {
	if m == nil || m.ingestRows == nil {
		return
	}
	m.ingestRows.WithLabelValues("inserted").Add(float64(inserted))
	m.ingestRows.WithLabelValues("duplicate").Add(float64(duplicates))
	m.ingestDuration.Observe(duration.Seconds())
}

// IncTransition counts a record lifecycle action.
func (m *WorkflowMetrics) IncTransition(action string) {
	m.AddTransitions(action, 1)
}

// AddTransitions counts n record lifecycle actions at once.
func (m *WorkflowMetrics) AddTransitions(action string, n int) {
	if m == nil || m.transitions == nil || n <= 0 {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(action)).Add(float64(n))
}

// IncAuditFailure counts a swallowed audit write failure.
func (m *WorkflowMetrics) IncAuditFailure(action string) {
	if m == nil || m.auditFailures == nil {
		return
	}
	m.auditFailures.WithLabelValues(normalizeLabel(action)).Inc()
}

// ObserveRequest records an HTTP request outcome.
func (m *WorkflowMetrics) ObserveRequest(method, route string, status int, duration time.Duration) {
	if m == nil || m.requests == nil {
		return
	}
	route = normalizeLabel(route)
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
