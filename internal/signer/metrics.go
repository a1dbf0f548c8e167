package signer

import "github.com/prometheus/client_golang/prometheus"

var (
	submitTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "satsgate",
		Subsystem: "signer",
		Name:      "submissions_total",
		Help:      "Total payment submissions to the signing agent by result.",
	}, []string{"result"})

	callbacksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "satsgate",
		Subsystem: "signer",
		Name:      "callbacks_total",
		Help:      "Total signer callbacks by event and routing result.",
	}, []string{"event", "result"})
)

func init() {
	prometheus.MustRegister(submitTotal, callbacksTotal)
}
