// Package prometheus provides Prometheus metrics exporters for Conductor's
// orchestration engine.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "conductor"

var (
	// stateDuration is a histogram of engine state duration in seconds.
	stateDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "state_duration_seconds",
			Help:      "Histogram of engine state duration in seconds",
			Buckets:   prometheus.DefBuckets, // .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10
		},
		[]string{"state", "status"}, // status: success, error
	)

	// requestsActive is a gauge of currently in-flight requests.
	requestsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "requests_active",
			Help:      "Number of currently in-flight orchestration requests",
		},
	)

	// requestDuration is a histogram of total request duration.
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Histogram of total orchestration request duration in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"status"}, // status: success, error
	)

	// requestConfidenceTotal counts answers by confidence level.
	requestConfidenceTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_confidence_total",
			Help:      "Total answers produced, labeled by confidence level",
		},
		[]string{"confidence"}, // high, medium, low
	)

	// replanIterationsTotal counts replanning iterations.
	replanIterationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replan_iterations_total",
			Help:      "Total number of replanning iterations across all requests",
		},
	)

	// providerRequestDuration is a histogram of LLM provider API call duration.
	providerRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Duration of LLM provider API calls in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	// providerRequestsTotal is a counter of provider API calls.
	providerRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Total number of provider API calls",
		},
		[]string{"provider", "model", "status"}, // status: success, error
	)

	// providerTokensTotal is a counter of tokens consumed by provider calls.
	providerTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_tokens_total",
			Help:      "Total tokens consumed by provider calls",
		},
		[]string{"provider", "model", "type"}, // type: input, output, cached
	)

	// providerCostTotal is a counter of total cost from provider calls.
	providerCostTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_cost_total",
			Help:      "Total cost in USD from provider calls",
		},
		[]string{"provider", "model"},
	)

	// toolCallDuration is a histogram of tool call duration.
	toolCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Duration of tool calls in seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"tool"},
	)

	// toolCallsTotal is a counter of tool calls.
	toolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total number of tool calls",
		},
		[]string{"tool", "status"}, // status: success, error
	)

	// guardrailDuration is a histogram of output guardrail check duration.
	guardrailDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "guardrail_duration_seconds",
			Help:      "Duration of output guardrail checks in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"guardrail"},
	)

	// guardrailChecksTotal is a counter of guardrail checks.
	guardrailChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guardrail_checks_total",
			Help:      "Total number of output guardrail checks",
		},
		[]string{"guardrail", "status"}, // status: passed, failed
	)

	// allMetrics is a list of all metrics for registration.
	allMetrics = []prometheus.Collector{
		stateDuration,
		requestsActive,
		requestDuration,
		requestConfidenceTotal,
		replanIterationsTotal,
		providerRequestDuration,
		providerRequestsTotal,
		providerTokensTotal,
		providerCostTotal,
		toolCallDuration,
		toolCallsTotal,
		guardrailDuration,
		guardrailChecksTotal,
	}
)

// RecordStateDuration records the duration of one engine state.
func RecordStateDuration(state, status string, durationSeconds float64) {
	stateDuration.WithLabelValues(state, status).Observe(durationSeconds)
}

// RecordRequestStart records a request entering the engine.
func RecordRequestStart() {
	requestsActive.Inc()
}

// RecordRequestEnd records a request leaving the engine.
func RecordRequestEnd(status string, durationSeconds float64) {
	requestsActive.Dec()
	requestDuration.WithLabelValues(status).Observe(durationSeconds)
}

// RecordConfidence records the confidence level of a produced answer.
func RecordConfidence(confidence string) {
	if confidence != "" {
		requestConfidenceTotal.WithLabelValues(confidence).Inc()
	}
}

// RecordReplanIteration records one replanning iteration.
func RecordReplanIteration() {
	replanIterationsTotal.Inc()
}

// RecordProviderRequest records a provider API call.
func RecordProviderRequest(provider, model, status string, durationSeconds float64) {
	providerRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	providerRequestsTotal.WithLabelValues(provider, model, status).Inc()
}

// RecordProviderTokens records token consumption.
func RecordProviderTokens(provider, model string, inputTokens, outputTokens, cachedTokens int) {
	if inputTokens > 0 {
		providerTokensTotal.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		providerTokensTotal.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
	}
	if cachedTokens > 0 {
		providerTokensTotal.WithLabelValues(provider, model, "cached").Add(float64(cachedTokens))
	}
}

// RecordProviderCost records cost from a provider call.
func RecordProviderCost(provider, model string, cost float64) {
	if cost > 0 {
		providerCostTotal.WithLabelValues(provider, model).Add(cost)
	}
}

// RecordToolCall records a tool call.
func RecordToolCall(toolName, status string, durationSeconds float64) {
	toolCallDuration.WithLabelValues(toolName).Observe(durationSeconds)
	toolCallsTotal.WithLabelValues(toolName, status).Inc()
}

// RecordGuardrail records an output guardrail check.
func RecordGuardrail(guardrail, status string, durationSeconds float64) {
	guardrailDuration.WithLabelValues(guardrail).Observe(durationSeconds)
	guardrailChecksTotal.WithLabelValues(guardrail, status).Inc()
}
