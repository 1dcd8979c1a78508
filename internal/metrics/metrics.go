// Package metrics holds the Prometheus collectors for the generation pipeline and its transports.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Rejection reasons for generated candidates
const (
	RejectDuplicate     = "duplicate"
	RejectNoSource      = "no_source"
	RejectInvalid       = "invalid"
	RejectPersistFailed = "persist_failed"
)

var (
	// SourceItemsFetched counts normalized items returned per provider
	SourceItemsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "digest_source_items_fetched_total",
			Help: "Source items returned by provider fetchers",
		},
		[]string{"provider"},
	)

	// SourceFetchFailures counts fetches that degraded to zero items
	SourceFetchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "digest_source_fetch_failures_total",
			Help: "Provider fetches that failed and yielded no items",
		},
		[]string{"provider"},
	)

	// SourceFetchDuration tracks provider fetch latency (seconds)
	SourceFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "digest_source_fetch_duration_seconds",
			Help:    "Provider fetch duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
		[]string{"provider"},
	)

	// CandidatesRejected counts generated todos that were not saved
	CandidatesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "digest_candidates_rejected_total",
			Help: "Generated todo candidates rejected before or during persistence",
		},
		[]string{"reason"},
	)

	// TodosAccepted counts persisted generated todos
	TodosAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "digest_todos_accepted_total",
			Help: "Generated todos persisted",
		},
	)

	// GenerationRuns counts pipeline runs per outcome
	GenerationRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "digest_generation_runs_total",
			Help: "Generation runs by outcome",
		},
		[]string{"outcome"}, // outcome: complete, empty, error
	)

	// LLMCallLatency tracks model call latency (milliseconds)
	LLMCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "digest_llm_call_latency_ms",
			Help:    "Language model call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10), // 100ms to ~100s
		},
		[]string{"status"},
	)

	// HTTPRequestDuration tracks HTTP request latency (seconds)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "digest_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "route", "status"},
	)

	// JobsProcessed counts background jobs by type and result
	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "digest_jobs_processed_total",
			Help: "Background jobs processed",
		},
		[]string{"type", "result"}, // result: success, retried, failed, invalid, dead_lettered
	)

	// DLQPurged counts dead-lettered jobs removed by the garbage collector
	DLQPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "digest_dlq_purged_total",
			Help: "Dead-lettered jobs purged after the retention period",
		},
	)
)

// RecordFetch records the outcome of one provider fetch
func RecordFetch(provider string, items int, duration time.Duration, err error) {
	SourceFetchDuration.WithLabelValues(provider).Observe(duration.Seconds())
	if err != nil {
		SourceFetchFailures.WithLabelValues(provider).Inc()
		return
	}
	SourceItemsFetched.WithLabelValues(provider).Add(float64(items))
}

// RecordLLMCall records model call latency
func RecordLLMCall(duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	LLMCallLatency.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

// RecordRejection records a rejected candidate
func RecordRejection(reason string) {
	CandidatesRejected.WithLabelValues(reason).Inc()
}

// RecordRun records a finished run
func RecordRun(outcome string) {
	GenerationRuns.WithLabelValues(outcome).Inc()
}

// RecordHTTPRequest records HTTP request latency
func RecordHTTPRequest(method, route, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

// RecordJob records a processed background job
func RecordJob(jobType, result string) {
	JobsProcessed.WithLabelValues(jobType, result).Inc()
}

// RecordDLQPurge records jobs removed from the dead-letter queue
func RecordDLQPurge(n int) {
	if n > 0 {
		DLQPurged.Add(float64(n))
	}
}
