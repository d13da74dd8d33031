// Package metrics provides Prometheus metrics for the alert service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "trade_alert"
)

// Fetcher metrics
var (
	// FetchAttemptsTotal counts upstream quote requests by source and result.
	FetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetcher",
			Name:      "attempts_total",
			Help:      "Total upstream quote requests",
		},
		[]string{"source", "result"},
	)

	// FetchDuration tracks upstream request latency.
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetcher",
			Name:      "request_duration_seconds",
			Help:      "Upstream quote request latency in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"source"},
	)

	// FallbacksTotal counts synthetic samples produced after all sources failed.
	FallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetcher",
			Name:      "fallbacks_total",
			Help:      "Total synthetic price samples",
		},
	)

	// CacheHitsTotal counts symbols skipped because their cached price is fresh.
	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetcher",
			Name:      "cache_hits_total",
			Help:      "Total symbols skipped on a fresh cache entry",
		},
	)

	// RateLimitDeferralsTotal counts fetches postponed by the hourly budget.
	RateLimitDeferralsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetcher",
			Name:      "rate_limit_deferrals_total",
			Help:      "Total fetches deferred because the hourly budget was exhausted",
		},
	)

	// BudgetUsed reports requests spent in the current hourly window.
	BudgetUsed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "fetcher",
			Name:      "budget_used",
			Help:      "Upstream requests counted in the current hourly window",
		},
	)

	// TickDuration tracks one full scheduler pass.
	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "tick_duration_seconds",
			Help:      "Duration of one polling pass over all watched symbols",
			Buckets:   prometheus.ExponentialBuckets(.1, 2, 10),
		},
	)

	// WatchedSymbols reports the distinct symbols with active alerts.
	WatchedSymbols = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "watched_symbols",
			Help:      "Distinct symbols with at least one active alert",
		},
	)
)

// Alert metrics
var (
	// AlertsTriggeredTotal counts successful active-to-triggered transitions.
	AlertsTriggeredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "triggered_total",
			Help:      "Total alerts triggered",
		},
	)

	// NotificationsTotal counts dispatches by channel and result.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "sent_total",
			Help:      "Total notification dispatches",
		},
		[]string{"channel", "result"},
	)
)

// Result label values.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// ResultLabel maps an error to a result label.
func ResultLabel(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}
