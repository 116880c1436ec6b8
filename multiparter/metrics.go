package multiparter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsTotal counts finished sessions by outcome (resolved, rejected)
	SessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "multiparter",
			Subsystem: "session",
			Name:      "total",
			Help:      "Total number of upload sessions by outcome",
		},
		[]string{"outcome"},
	)

	// SessionErrors counts rejected sessions by error name
	SessionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "multiparter",
			Subsystem: "session",
			Name:      "errors_total",
			Help:      "Total number of rejected upload sessions by error name",
		},
		[]string{"name"},
	)

	// SessionDuration tracks time from start to outcome
	SessionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "multiparter",
			Subsystem: "session",
			Name:      "duration_seconds",
			Help:      "Time from session start to its outcome",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16), // 1ms to ~32s
		},
		[]string{"outcome"},
	)

	// FilesTotal counts file parts by result (stored, discarded, failed)
	FilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "multiparter",
			Subsystem: "file",
			Name:      "total",
			Help:      "Total number of file parts by pipeline result",
		},
		[]string{"result"},
	)

	// FilesInFlight is the number of file pipelines currently running
	FilesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "multiparter",
			Subsystem: "file",
			Name:      "in_flight",
			Help:      "Number of file pipelines currently running",
		},
	)

	// RollbacksTotal counts adapter rollbacks by result (ok, failed)
	RollbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "multiparter",
			Subsystem: "rollback",
			Name:      "total",
			Help:      "Total number of storage rollbacks by result",
		},
		[]string{"result"},
	)
)
