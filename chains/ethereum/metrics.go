package ethereum

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeOK      = "ok"
	outcomeError   = "error"
	outcomeSkipped = "skipped"
)

// Metrics holds the Prometheus collectors of the pipeline client.
type Metrics struct {
	cycleDuration prometheus.Histogram
	cycles        *prometheus.CounterVec
	opportunities prometheus.Gauge
	trackedPools  prometheus.Gauge
	negCycles     prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "arbpath",
			Subsystem: "pipeline",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of one refetch and recompute cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arbpath",
			Subsystem: "pipeline",
			Name:      "cycles_total",
			Help:      "Cycles run, by outcome.",
		}, []string{"outcome"}),
		opportunities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "arbpath",
			Subsystem: "pipeline",
			Name:      "opportunities",
			Help:      "Paths with a positive spread in the latest cycle.",
		}),
		trackedPools: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "arbpath",
			Subsystem: "pipeline",
			Name:      "tracked_pools",
			Help:      "Pools kept by the anchor reachability filter.",
		}),
		negCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arbpath",
			Subsystem: "pipeline",
			Name:      "negative_cycles_total",
			Help:      "Solver results flagged with a negative cycle.",
		}),
	}
	reg.MustRegister(m.cycleDuration, m.cycles, m.opportunities, m.trackedPools, m.negCycles)
	return m
}
