package batch

import "github.com/prometheus/client_golang/prometheus"

var (
	batchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "inferd",
			Subsystem: "batch",
			Name:      "batches_total",
			Help:      "Batches dispatched",
		},
	)

	batchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "inferd",
			Subsystem: "batch",
			Name:      "batch_size",
			Help:      "Requests per dispatched batch",
			Buckets:   []float64{1, 2, 4, 8, 16, 32},
		},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "inferd",
			Subsystem: "batch",
			Name:      "queue_depth",
			Help:      "Requests waiting for dispatch",
		},
	)

	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inferd",
			Subsystem: "batch",
			Name:      "requests_total",
			Help:      "Requests by terminal outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(batchesTotal, batchSize, queueDepth, requestsTotal)
}
