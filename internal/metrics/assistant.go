package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "bassam"

// LLM dispatch metrics.
var (
	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Provider attempts by outcome",
		},
		[]string{"provider", "status"}, // "success" / "failure" / "skipped"
	)

	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Provider call duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		},
		[]string{"provider"},
	)

	LLMTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Tokens reported by providers",
		},
		[]string{"provider"},
	)

	LLMFallbackTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_fallback_total",
			Help:      "Dispatches where every provider failed",
		},
	)
)

// Ledger metrics.
var (
	LedgerQuotaRemaining = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_quota_remaining",
			Help:      "Remaining daily quota per provider (-1 = unlimited)",
		},
		[]string{"provider", "kind"}, // "requests" / "tokens"
	)

	LedgerMonthly = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_monthly",
			Help:      "Monthly counters: bandwidth bytes and build minutes",
		},
		[]string{"counter"},
	)

	LedgerPersistErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_persist_errors_total",
			Help:      "Failed ledger flushes (deltas stay staged)",
		},
	)
)

// Answer cache metrics.
var (
	AnswerCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answer_cache_total",
			Help:      "Answer cache lookups by tier and result",
		},
		[]string{"tier", "result"}, // tier: memory/durable, result: hit/miss
	)

	AnswerCacheBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "answer_cache_bytes",
			Help:      "Approximate bytes held by the in-memory answer tier",
		},
	)
)

// Web pipeline and routing metrics.
var (
	WebFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "web_fetch_total",
			Help:      "Page fetches by outcome",
		},
		[]string{"result"}, // "article" / "stripped" / "error"
	)

	WebSearchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "web_search_duration_seconds",
			Help:      "Search round-trip duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 12},
		},
	)

	RoutesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answer_routes_total",
			Help:      "Answers produced per route",
		},
		[]string{"route"},
	)
)

var assistantMetricsRegistered bool

// RegisterAssistantMetrics registers the answer pipeline metrics. Must be called once from main.
func RegisterAssistantMetrics() {
	if assistantMetricsRegistered {
		return
	}
	prometheus.MustRegister(
		LLMRequestsTotal,
		LLMRequestDuration,
		LLMTokensTotal,
		LLMFallbackTotal,
		LedgerQuotaRemaining,
		LedgerMonthly,
		LedgerPersistErrorsTotal,
		AnswerCacheTotal,
		AnswerCacheBytes,
		WebFetchTotal,
		WebSearchDuration,
		RoutesTotal,
	)
	assistantMetricsRegistered = true
}
