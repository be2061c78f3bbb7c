package reserves

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	modeChunked = "chunked"
	modeSharded = "sharded"
)

// Metrics holds the Prometheus collectors for reserve fetching.
type Metrics struct {
	fetchDuration *prometheus.HistogramVec
	poolsFetched  *prometheus.CounterVec
	poolsSkipped  *prometheus.CounterVec
	shardFailures prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "arbpath",
			Subsystem: "reserves",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of a full reserve fetch.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"mode"}),
		poolsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arbpath",
			Subsystem: "reserves",
			Name:      "pools_fetched_total",
			Help:      "Pools whose state was read successfully.",
		}, []string{"mode"}),
		poolsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arbpath",
			Subsystem: "reserves",
			Name:      "pools_skipped_total",
			Help:      "Pools omitted from a fetch because their query failed.",
		}, []string{"mode"}),
		shardFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arbpath",
			Subsystem: "reserves",
			Name:      "shard_failures_total",
			Help:      "Shards that failed and aborted a sharded fetch.",
		}),
	}
	reg.MustRegister(m.fetchDuration, m.poolsFetched, m.poolsSkipped, m.shardFailures)
	return m
}
