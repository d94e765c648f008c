package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline metrics
	AnswersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medanswer_answers_total",
			Help: "Total number of answer requests, by safety verdict",
		},
		[]string{"verdict"},
	)

	PipelineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "medanswer_pipeline_duration_seconds",
			Help:    "End-to-end pipeline execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	EscalationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "medanswer_escalations_total",
			Help: "Total number of completeness escalation cycles",
		},
	)

	TopicResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medanswer_topic_resolutions_total",
			Help: "Total topic resolutions, by strategy (or 'none')",
		},
		[]string{"strategy"},
	)

	// Retrieval metrics
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medanswer_searches_total",
			Help: "Total web searches issued, by tier and status",
		},
		[]string{"tier", "status"},
	)

	SearchResultCount = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "medanswer_search_results",
			Help:    "Number of results returned per search call",
			Buckets: []float64{0, 1, 3, 5, 10, 15, 25},
		},
	)

	ProbeDropsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "medanswer_probe_drops_total",
			Help: "Total search results dropped by the link-liveness probe",
		},
	)

	// Generation metrics
	CompletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medanswer_completions_total",
			Help: "Total generation calls, by provider and status",
		},
		[]string{"provider", "status"},
	)

	ProviderFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "medanswer_provider_fallbacks_total",
			Help: "Total fallthroughs from one generation provider to the next",
		},
	)

	SynthesisFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "medanswer_synthesis_fallbacks_total",
			Help: "Total deterministic snippet answers produced with no provider available",
		},
	)

	// Session cache metrics
	SessionCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "medanswer_session_cache_hits_total",
			Help: "Total number of session cache hits",
		},
	)

	SessionCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "medanswer_session_cache_misses_total",
			Help: "Total number of session cache misses",
		},
	)

	SessionCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "medanswer_session_cache_size",
			Help: "Current number of sessions in the local cache",
		},
	)

	SessionCacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "medanswer_session_cache_evictions_total",
			Help: "Total number of sessions evicted from the local cache",
		},
	)

	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "medanswer_sessions_created_total",
			Help: "Total number of sessions created",
		},
	)
)

// RecordSearch records one search call and its result count.
func RecordSearch(tier, status string, results int) {
	SearchesTotal.WithLabelValues(tier, status).Inc()
	if status == "ok" {
		SearchResultCount.Observe(float64(results))
	}
}

// RecordCompletion records one generation call outcome.
func RecordCompletion(provider, status string) {
	CompletionsTotal.WithLabelValues(provider, status).Inc()
}
