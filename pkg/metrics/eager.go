package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eagerload_queries_total",
			Help: "Batch queries issued by the eager loader",
		},
		[]string{"kind", "table"},
	)

	batchKeys = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "eagerload_batch_keys",
			Help:    "Number of distinct key values bound into one batch query",
			Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
		},
	)

	nodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eagerload_node_duration_seconds",
			Help:    "Time spent fetching and associating one relation node",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
		[]string{"kind", "state"},
	)
)

// ObserveQuery counts one batch query against table with the given number of keys.
func ObserveQuery(kind, table string, keys int) {
	queriesTotal.WithLabelValues(kind, table).Inc()
	batchKeys.Observe(float64(keys))
}

// ObserveNode records how long a node took and the state it ended in.
func ObserveNode(kind, state string, d time.Duration) {
	nodeDuration.WithLabelValues(kind, state).Observe(d.Seconds())
}
