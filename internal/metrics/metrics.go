package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Relay outcomes, one per terminal state of a chat request.
const (
	OutcomeSucceeded        = "succeeded"
	OutcomeDegraded         = "degraded"
	OutcomeRejected         = "rejected"
	OutcomeTimedOut         = "timed_out"
	OutcomeTransportFailed  = "transport_failed"
	OutcomeUnexpectedFailed = "unexpected_failed"
)

var (
	ChatRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_requests_total",
		Help: "Chat requests by terminal outcome",
	}, []string{"outcome"})

	UpstreamDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chat_upstream_duration_seconds",
		Help:    "Latency of the generate call to the upstream API",
		Buckets: []float64{0.25, 0.5, 1.0, 2.0, 4.0, 8.0, 15.0, 30.0},
	})

	UpstreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_upstream_errors_total",
		Help: "Upstream failures by kind",
	}, []string{"kind"})
)
