package settlement

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	outcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "satsgate",
		Subsystem: "settlement",
		Name:      "outcomes_total",
		Help:      "Total purchase attempts by terminal outcome.",
	}, []string{"status"}) // "confirmed", "cancelled", "timed_out", "signer_error"

	reconciledCancels = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "satsgate",
		Subsystem: "settlement",
		Name:      "reconciled_cancels_total",
		Help:      "Cancel signals that turned out to be completed transfers.",
	})

	pollIterations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "satsgate",
		Subsystem: "settlement",
		Name:      "poll_iterations_total",
		Help:      "Total reconciliation poll lookups against the indexer.",
	})

	dispatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "satsgate",
		Subsystem: "settlement",
		Name:      "dispatch_duration_seconds",
		Help:      "Time from submission to terminal outcome.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	})
)

func init() {
	prometheus.MustRegister(
		outcomesTotal,
		reconciledCancels,
		pollIterations,
		dispatchDuration,
	)
}
