package perfcache

import "github.com/prometheus/client_golang/prometheus"

var lookupsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "inferd",
		Subsystem: "perfcache",
		Name:      "lookups_total",
		Help:      "Cache lookups by kind and outcome",
	},
	[]string{"kind", "outcome"},
)

func init() {
	prometheus.MustRegister(lookupsTotal)
}

func recordLookup(kind string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	lookupsTotal.WithLabelValues(kind, outcome).Inc()
}
