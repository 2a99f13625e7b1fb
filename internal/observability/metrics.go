package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the ScholarVault service.
// Metrics are organized by subsystem: metadata enrichment, upstream calls,
// documents, events, and the HTTP surface. All counters and histograms are
// registered via promauto with the default Prometheus registry.
type Metrics struct {
	// EnrichmentRuns counts pipeline runs, labeled by the path that produced the record.
	EnrichmentRuns *prometheus.CounterVec

	// EnrichmentDuration observes end-to-end pipeline duration in seconds.
	EnrichmentDuration prometheus.Histogram

	// EnrichmentGaps counts fields the registry left empty, labeled by field.
	EnrichmentGaps *prometheus.CounterVec

	// UpstreamRequests counts outbound calls, labeled by upstream and status.
	UpstreamRequests *prometheus.CounterVec

	// UpstreamRequestDuration observes outbound call duration in seconds.
	UpstreamRequestDuration *prometheus.HistogramVec

	// LLMTokensUsed counts completion tokens, labeled by model and token type.
	LLMTokensUsed *prometheus.CounterVec

	// DocumentsUploaded counts PDFs accepted by the upload endpoint.
	DocumentsUploaded prometheus.Counter

	// EventsPublished counts lifecycle events, labeled by event type and result.
	EventsPublished *prometheus.CounterVec

	// HTTPRequests counts HTTP requests, labeled by method, route, and status.
	HTTPRequests *prometheus.CounterVec

	// HTTPRequestDuration observes HTTP request duration in seconds.
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		EnrichmentRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_runs_total",
			Help:      "Total number of metadata enrichment runs by outcome",
		}, []string{"outcome"}),
		EnrichmentDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "enrichment_duration_seconds",
			Help:      "Duration of metadata enrichment runs in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 20},
		}),
		EnrichmentGaps: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_gaps_total",
			Help:      "Total number of registry fields left empty by field",
		}, []string{"field"}),

		UpstreamRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Total number of outbound requests by upstream and status",
		}, []string{"upstream", "status"}),
		UpstreamRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Duration of outbound requests in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"upstream"}),
		LLMTokensUsed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used by completion requests",
		}, []string{"model", "token_type"}),

		DocumentsUploaded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_uploaded_total",
			Help:      "Total number of PDF documents uploaded",
		}),
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of lifecycle events published by type and result",
		}, []string{"event_type", "result"}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// RecordEnrichment records a finished pipeline run.
func (m *Metrics) RecordEnrichment(outcome string, durationSeconds float64) {
	m.EnrichmentRuns.WithLabelValues(outcome).Inc()
	m.EnrichmentDuration.Observe(durationSeconds)
}

// RecordEnrichmentGaps records the fields a registry record was missing.
func (m *Metrics) RecordEnrichmentGaps(fields []string) {
	for _, f := range fields {
		m.EnrichmentGaps.WithLabelValues(f).Inc()
	}
}

// RecordUpstreamRequest records an outbound request.
func (m *Metrics) RecordUpstreamRequest(upstream, status string, durationSeconds float64) {
	m.UpstreamRequests.WithLabelValues(upstream, status).Inc()
	m.UpstreamRequestDuration.WithLabelValues(upstream).Observe(durationSeconds)
}

// RecordLLMTokens records token usage reported by the completion service.
func (m *Metrics) RecordLLMTokens(model string, inputTokens, outputTokens int) {
	m.LLMTokensUsed.WithLabelValues(model, "input").Add(float64(inputTokens))
	m.LLMTokensUsed.WithLabelValues(model, "output").Add(float64(outputTokens))
}

// RecordDocumentUploaded records an accepted upload.
func (m *Metrics) RecordDocumentUploaded() {
	m.DocumentsUploaded.Inc()
}

// RecordEventPublished records a publish attempt.
func (m *Metrics) RecordEventPublished(eventType string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.EventsPublished.WithLabelValues(eventType, result).Inc()
}

// RecordHTTPRequest records a served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route, status string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(durationSeconds)
}
