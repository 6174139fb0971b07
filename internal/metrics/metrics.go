package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Counters
	JobsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_processed_total",
			Help: "Queue jobs processed by outcome",
		},
		[]string{"queue", "status"},
	)

	JobsClaimedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_claimed_total",
			Help: "Queue jobs claimed by workers",
		},
		[]string{"queue"},
	)

	DocumentsUpsertedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "documents_upserted_total",
			Help: "Documents written by the ingestion worker",
		},
		[]string{"source_type"},
	)

	EvidenceCommitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evidence_commits_total",
			Help: "Evidence commit transactions by outcome",
		},
		[]string{"status"},
	)

	EvidenceCommitRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evidence_commit_retries_total",
			Help: "Evidence commits retried after serialization failures",
		},
		[]string{},
	)

	LLMCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_calls_total",
			Help: "LLM calls by operation and outcome",
		},
		[]string{"operation", "status"},
	)

	TranscriptionCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transcription_calls_total",
			Help: "Transcription provider calls by provider and outcome",
		},
		[]string{"provider", "status"},
	)

	ReferenceFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reference_fetches_total",
			Help: "Reference crawler fetches by outcome",
		},
		[]string{"status"},
	)

	ReferenceCacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reference_cache_hits_total",
			Help: "Reference cache hits",
		},
		[]string{},
	)

	ReferenceCacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reference_cache_misses_total",
			Help: "Reference cache misses (expired or absent)",
		},
		[]string{},
	)

	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "API requests",
		},
		[]string{"endpoint", "method"},
	)

	APIErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_errors_total",
			Help: "API errors by status code",
		},
		[]string{"status"},
	)

	RateLimitHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_hits_total",
			Help: "Rate limiter hits",
		},
		[]string{},
	)

	// Gauges
	APIRequestsInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "api_requests_in_flight",
			Help: "Concurrent API requests",
		},
		[]string{},
	)

	// Histograms
	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "job_duration_seconds",
			Help:    "Time from claim to completion per queue job",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"queue"},
	)

	LLMCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_call_duration_seconds",
			Help:    "LLM call duration by operation",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"operation"},
	)

	initOnce sync.Once
)

// InitMetrics registers all metrics with the default Prometheus registry.
// Safe to call more than once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			JobsProcessedTotal,
			JobsClaimedTotal,
			DocumentsUpsertedTotal,
			EvidenceCommitsTotal,
			EvidenceCommitRetriesTotal,
			LLMCallsTotal,
			TranscriptionCallsTotal,
			ReferenceFetchesTotal,
			ReferenceCacheHitsTotal,
			ReferenceCacheMissesTotal,
			APIRequestsTotal,
			APIErrorsTotal,
			RateLimitHitsTotal,
			APIRequestsInFlight,
			APIRequestDuration,
			JobDuration,
			LLMCallDuration,
		)
	})
}
