package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	askRequestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetquery_ask_requests_total",
			Help: "Total number of ask requests reaching the orchestrator.",
		},
	)
	askCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetquery_ask_cache_hits_total",
			Help: "Total number of ask requests served from the query cache.",
		},
	)
	askRateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetquery_ask_rate_limited_total",
			Help: "Total number of ask requests refused by the rate limiter.",
		},
	)
	askRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetquery_ask_rejections_total",
			Help: "Total number of generated queries rejected by the validator, by error code.",
		},
		[]string{"code"},
	)
	askTranslateLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleetquery_ask_translate_latency_ms",
			Help:    "Language model translation latency in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000},
		},
	)
	askResponseLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleetquery_ask_response_latency_ms",
			Help:    "End-to-end ask latency in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2000, 5000, 15000, 60000},
		},
	)
	askSafetyScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleetquery_ask_safety_score",
			Help:    "Safety score of executed queries.",
			Buckets: []float64{50, 60, 70, 80, 90, 95, 100},
		},
	)
)

func init() {
	prometheus.MustRegister(
		askRequestsTotal,
		askCacheHitsTotal,
		askRateLimitedTotal,
		askRejectionsTotal,
		askTranslateLatencyMs,
		askResponseLatencyMs,
		askSafetyScore,
	)
}

func IncrementAskRequests() {
	askRequestsTotal.Inc()
}

func IncrementAskCacheHit() {
	askCacheHitsTotal.Inc()
}

func IncrementAskRateLimited() {
	askRateLimitedTotal.Inc()
}

func IncrementAskRejection(code string) {
	askRejectionsTotal.WithLabelValues(code).Inc()
}

func ObserveTranslateLatency(elapsed time.Duration) {
	askTranslateLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func ObserveAskResponse(elapsed time.Duration, safetyScore int) {
	askResponseLatencyMs.Observe(float64(elapsed.Milliseconds()))
	askSafetyScore.Observe(float64(safetyScore))
}
