// Package metrics exposes the control plane's Prometheus instruments.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ProviderAttempts counts generation attempts per provider and outcome.
	ProviderAttempts *prometheus.CounterVec

	// ProviderLatency observes provider call duration.
	ProviderLatency *prometheus.HistogramVec

	// FallbackResponses counts synthetic responses returned by the router.
	FallbackResponses prometheus.Counter

	// TasksTotal counts finished tasks per agent category and final status.
	TasksTotal *prometheus.CounterVec

	// TaskDuration observes task execution time.
	TaskDuration *prometheus.HistogramVec

	// ToolCallsTotal counts tool dispatches.
	ToolCallsTotal *prometheus.CounterVec

	// HTTPRequests counts API requests.
	HTTPRequests *prometheus.CounterVec
)

var latencyBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30}

func init() {
	ProviderAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "legacore",
			Subsystem: "router",
			Name:      "provider_attempts_total",
			Help:      "Total provider generation attempts",
		},
		[]string{"provider", "status"},
	)

	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "legacore",
			Subsystem: "router",
			Name:      "provider_latency_seconds",
			Help:      "Provider call duration in seconds",
			Buckets:   latencyBuckets,
		},
		[]string{"provider"},
	)

	FallbackResponses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "legacore",
			Subsystem: "router",
			Name:      "fallback_responses_total",
			Help:      "Synthetic responses returned after every provider failed",
		},
	)

	TasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "legacore",
			Subsystem: "pipeline",
			Name:      "tasks_total",
			Help:      "Finished agent tasks",
		},
		[]string{"category", "status"},
	)

	TaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "legacore",
			Subsystem: "pipeline",
			Name:      "task_duration_seconds",
			Help:      "Agent task execution time in seconds",
			Buckets:   latencyBuckets,
		},
		[]string{"category"},
	)

	ToolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "legacore",
			Subsystem: "tools",
			Name:      "calls_total",
			Help:      "Tool dispatches by category, tool and outcome",
		},
		[]string{"category", "tool", "status"},
	)

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "legacore",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "API requests by route pattern and status code",
		},
		[]string{"method", "route", "code"},
	)

	prometheus.MustRegister(
		ProviderAttempts,
		ProviderLatency,
		FallbackResponses,
		TasksTotal,
		TaskDuration,
		ToolCallsTotal,
		HTTPRequests,
	)
}

// RecordProviderAttempt records one provider call.
func RecordProviderAttempt(provider, status string, durationSec float64) {
	ProviderAttempts.WithLabelValues(provider, status).Inc()
	ProviderLatency.WithLabelValues(provider).Observe(durationSec)
}

// RecordTask records a finished task.
func RecordTask(category, status string, durationSec float64) {
	if category == "" {
		category = "unknown"
	}
	TasksTotal.WithLabelValues(category, status).Inc()
	TaskDuration.WithLabelValues(category).Observe(durationSec)
}

// RecordToolCall records a tool dispatch.
func RecordToolCall(category, tool, status string) {
	ToolCallsTotal.WithLabelValues(category, tool, status).Inc()
}

// RecordHTTPRequest records a served API request.
func RecordHTTPRequest(method, route string, code int) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
}
