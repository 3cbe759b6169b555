package chat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "council",
			Name:      "runs_total",
			Help:      "Council runs by type and result (ok, error, disconnected).",
		},
		[]string{"type", "status"},
	)

	runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "council",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a council run including persistence.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		},
		[]string{"type"},
	)
)
