package indexer

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "satsgate",
		Subsystem: "indexer",
		Name:      "requests_total",
		Help:      "Total indexer lookups by endpoint and outcome.",
	}, []string{"endpoint", "outcome"}) // endpoint: "tx", "address_txs"

	requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "satsgate",
		Subsystem: "indexer",
		Name:      "request_duration_seconds",
		Help:      "Indexer lookup duration including retries.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"endpoint"})
)

func init() {
	prometheus.MustRegister(requestsTotal, requestDuration)
}
