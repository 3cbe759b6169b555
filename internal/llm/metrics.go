package llm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	callsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "council",
			Name:      "agent_calls_total",
			Help:      "Model invocations by model and outcome (ok, error).",
		},
		[]string{"model", "status"},
	)

	callDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "council",
			Name:      "agent_call_duration_seconds",
			Help:      "Model invocation latency in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 11),
		},
		[]string{"model"},
	)
)
