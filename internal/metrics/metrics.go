// Package metrics holds the prometheus collectors shared by both processes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "waenhancer"

var (
	// SuppressedPayloads counts outbound calls swallowed by an interceptor, by kind (socket, http).
	SuppressedPayloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suppressed_payloads_total",
			Help:      "Outbound payloads suppressed by the interception layer.",
		},
		[]string{"kind"},
	)

	// ForwardedPayloads counts outbound calls that passed the interceptors.
	ForwardedPayloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forwarded_payloads_total",
			Help:      "Outbound payloads passed through the interception layer.",
		},
		[]string{"kind"},
	)

	CapturedMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "captured_messages_total",
			Help:      "Deleted messages recovered from DOM removals.",
		},
	)

	// ScheduledDispatches counts sweep outcomes by result (relayed, dropped).
	ScheduledDispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduled_dispatches_total",
			Help:      "Scheduled messages taken from the queue by the sweep.",
		},
		[]string{"result"},
	)

	AutoReplyMatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "autoreply_evaluations_total",
			Help:      "Inbound messages evaluated against autoreply rules, by outcome.",
		},
		[]string{"outcome"},
	)

	AIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_requests_total",
			Help:      "Generation requests by result error code (ok on success).",
		},
		[]string{"result"},
	)

	AIRequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ai_request_duration_seconds",
			Help:      "Latency of generation requests.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	ProtocolRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_requests_total",
			Help:      "Protocol requests handled by the background process.",
		},
		[]string{"type", "result"},
	)

	StatusUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_updates_total",
			Help:      "Status automation cycles by result.",
		},
		[]string{"result"},
	)

	ElementWaitTimeouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "element_wait_timeouts_total",
			Help:      "Element waits that gave up, by selector.",
		},
		[]string{"selector"},
	)

	ConnectedMonitors = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_monitors",
			Help:      "Page monitors currently connected to the background process.",
		},
	)

	CircuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 open, 2 half-open).",
		},
		[]string{"name"},
	)

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_inflight",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		SuppressedPayloads,
		ForwardedPayloads,
		CapturedMessages,
		ScheduledDispatches,
		AutoReplyMatches,
		AIRequests,
		AIRequestDuration,
		ProtocolRequests,
		StatusUpdates,
		ElementWaitTimeouts,
		ConnectedMonitors,
		CircuitState,
		HTTPRequests,
		HTTPDuration,
		HTTPInflight,
	)
}
