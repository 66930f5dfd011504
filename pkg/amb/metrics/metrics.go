// Package metrics exports search progress as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/operator-framework/amb/pkg/amb"
)

const namespace = "amb"

// Tracer is an amb.Tracer counting universes by outcome and tracking the
// number of pending paths.
type Tracer struct {
	Universes *prometheus.CounterVec
	Branches  prometheus.Counter
	Pending   prometheus.Gauge
	PathDepth prometheus.Histogram
}

var _ amb.Tracer = &Tracer{}

// NewTracer registers the tracer's metrics with reg.
func NewTracer(reg prometheus.Registerer) *Tracer {
	factory := promauto.With(reg)
	return &Tracer{
		Universes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "universes_total",
			Help:      "Universes run, by outcome.",
		}, []string{"outcome"}),
		Branches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "branch_points_total",
			Help:      "Times a universe split into new pending paths.",
		}),
		Pending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "pending_paths",
			Help:      "Paths waiting in the queue.",
		}),
		PathDepth: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "path_length",
			Help:      "Choice path length of finished universes.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}
}

func (t *Tracer) Trace(p amb.SearchPosition) {
	t.Pending.Set(float64(p.Pending()))
	if p.Outcome() == amb.Continue {
		t.Branches.Inc()
		return
	}
	t.Universes.WithLabelValues(p.Outcome().String()).Inc()
	t.PathDepth.Observe(float64(len(p.Path())))
}
