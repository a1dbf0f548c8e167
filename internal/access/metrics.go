package access

import (
	"github.com/prometheus/client_golang/prometheus"
)

var decisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "satsgate",
	Subsystem: "access",
	Name:      "decisions_total",
	Help:      "Total verification decisions by result.",
}, []string{"result"}) // "allowed" or a deny reason

func init() {
	prometheus.MustRegister(decisionsTotal)
}
