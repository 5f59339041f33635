package router

import "github.com/prometheus/client_golang/prometheus"

var (
	loadAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inferd",
			Subsystem: "router",
			Name:      "load_attempts_total",
			Help:      "Backend load attempts by outcome",
		},
		[]string{"backend", "outcome"},
	)

	loadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "inferd",
			Subsystem: "router",
			Name:      "load_duration_seconds",
			Help:      "Duration of successful backend loads in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"backend"},
	)

	fallbacksCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "inferd",
			Subsystem: "router",
			Name:      "fallbacks_total",
			Help:      "Times the fallback chain advanced past a failed backend",
		},
	)

	sessionActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "inferd",
			Subsystem: "router",
			Name:      "session_active",
			Help:      "1 while a model is loaded",
		},
	)
)

func init() {
	prometheus.MustRegister(loadAttemptsTotal, loadDuration, fallbacksCounter, sessionActive)
}
