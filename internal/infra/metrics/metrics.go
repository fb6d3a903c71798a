// Package metrics holds the Prometheus collectors of the service. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// HTTPRequestsTotal counts requests by method, route and status.
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTPRequestDuration tracks request latency by method and route.
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	// RateLimited counts requests rejected by the limiter.
	RateLimited prometheus.Counter

	// ObjectWritesTotal counts object writes by backend and result
	// (stored|deduplicated).
	ObjectWritesTotal *prometheus.CounterVec
	ObjectBytesStored *prometheus.CounterVec
	// ObjectVerificationsTotal counts hash checks by backend and result
	// (match|mismatch).
	ObjectVerificationsTotal *prometheus.CounterVec

	InspectionsTotal  *prometheus.CounterVec
	VersionsCreated   prometheus.Counter
	EvidenceAttached  *prometheus.CounterVec
	EvidenceFailures  *prometheus.CounterVec
	IntegrityRuns     prometheus.Counter
	IntegrityProblems prometheus.Counter
	AuditEventsTotal  *prometheus.CounterVec
	ExportsTotal      prometheus.Counter
	SearchesTotal     prometheus.Counter
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return newMetrics(promauto.With(prometheus.DefaultRegisterer))
}

// NewWithRegistry creates metrics on a custom registry for testing.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	return newMetrics(promauto.With(reg))
}

func newMetrics(f promauto.Factory) *Metrics {
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "evidence_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),

		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "evidence_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),

		HTTPRequestsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "evidence_http_requests_in_flight",
			Help: "Number of HTTP requests being served",
		}),

		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Name: "evidence_http_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		}),

		ObjectWritesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "evidence_object_writes_total",
			Help: "Total number of object writes by result",
		}, []string{"backend", "result"}),

		ObjectBytesStored: f.NewCounterVec(prometheus.CounterOpts{
			Name: "evidence_object_bytes_stored_total",
			Help: "Bytes physically written to the object store",
		}, []string{"backend"}),

		ObjectVerificationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "evidence_object_verifications_total",
			Help: "Total number of object hash verifications by result",
		}, []string{"backend", "result"}),

		InspectionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "evidence_inspections_total",
			Help: "Total number of recorded inspections",
		}, []string{"run_type", "risk_level"}),

		VersionsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "evidence_artifact_versions_created_total",
			Help: "Total number of artifact versions created",
		}),

		EvidenceAttached: f.NewCounterVec(prometheus.CounterOpts{
			Name: "evidence_files_attached_total",
			Help: "Total number of evidence files attached by kind",
		}, []string{"kind"}),

		EvidenceFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "evidence_attach_failures_total",
			Help: "Total number of evidence files that could not be produced or attached",
		}, []string{"kind"}),

		IntegrityRuns: f.NewCounter(prometheus.CounterOpts{
			Name: "evidence_integrity_runs_total",
			Help: "Total number of tenant integrity verifications",
		}),

		IntegrityProblems: f.NewCounter(prometheus.CounterOpts{
			Name: "evidence_integrity_problems_total",
			Help: "Total number of integrity problems found",
		}),

		AuditEventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "evidence_audit_events_total",
			Help: "Total number of audit events appended",
		}, []string{"event_type"}),

		ExportsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "evidence_exports_total",
			Help: "Total number of manifest exports",
		}),

		SearchesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "evidence_searches_total",
			Help: "Total number of search queries",
		}),
	}
}

// ObjectStored implements storage.Observer.
func (m *Metrics) ObjectStored(backend string, size int64, deduplicated bool) {
	if m == nil {
		return
	}
	if deduplicated {
		m.ObjectWritesTotal.WithLabelValues(backend, "deduplicated").Inc()
		return
	}
	m.ObjectWritesTotal.WithLabelValues(backend, "stored").Inc()
	m.ObjectBytesStored.WithLabelValues(backend).Add(float64(size))
}

// ObjectVerified implements storage.Observer.
func (m *Metrics) ObjectVerified(backend string, ok bool) {
	if m == nil {
		return
	}
	result := "match"
	if !ok {
		result = "mismatch"
	}
	m.ObjectVerificationsTotal.WithLabelValues(backend, result).Inc()
}

func (m *Metrics) InspectionRecorded(runType, risk string) {
	if m == nil {
		return
	}
	if risk == "" {
		risk = "none"
	}
	m.InspectionsTotal.WithLabelValues(runType, risk).Inc()
}

func (m *Metrics) VersionCreated() {
	if m == nil {
		return
	}
	m.VersionsCreated.Inc()
}

func (m *Metrics) EvidenceAttachedKind(kind string) {
	if m == nil {
		return
	}
	m.EvidenceAttached.WithLabelValues(kind).Inc()
}

func (m *Metrics) EvidenceFailed(kind string) {
	if m == nil {
		return
	}
	m.EvidenceFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) IntegrityChecked(problems int) {
	if m == nil {
		return
	}
	m.IntegrityRuns.Inc()
	m.IntegrityProblems.Add(float64(problems))
}

func (m *Metrics) AuditAppended(eventType string) {
	if m == nil {
		return
	}
	m.AuditEventsTotal.WithLabelValues(eventType).Inc()
}

func (m *Metrics) ExportBuilt() {
	if m == nil {
		return
	}
	m.ExportsTotal.Inc()
}

func (m *Metrics) Searched() {
	if m == nil {
		return
	}
	m.SearchesTotal.Inc()
}

// HTTPObserved records one finished request.
func (m *Metrics) HTTPObserved(method, route string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(seconds)
}
