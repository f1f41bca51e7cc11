package download

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes pipeline counters. A nil *Metrics disables collection.
type Metrics struct {
	evaluated prometheus.Counter
	skipped   prometheus.Counter
	fetched   prometheus.Counter
	failed    prometheus.Counter
	shots     prometheus.Counter
}

// NewMetrics registers the pipeline counters with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		evaluated: factory.NewCounter(prometheus.CounterOpts{
			Name: "gedi_granules_evaluated_total",
			Help: "Granules yielded by the source and considered by the pipeline.",
		}),
		skipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "gedi_granules_skipped_total",
			Help: "Granules rejected by the granule constraint before any data fetch.",
		}),
		fetched: factory.NewCounter(prometheus.CounterOpts{
			Name: "gedi_granules_fetched_total",
			Help: "Granules whose content was fetched and decoded.",
		}),
		failed: factory.NewCounter(prometheus.CounterOpts{
			Name: "gedi_granules_failed_total",
			Help: "Granules that failed a pipeline stage.",
		}),
		shots: factory.NewCounter(prometheus.CounterOpts{
			Name: "gedi_shots_retained_total",
			Help: "Shots surviving all shot constraints.",
		}),
	}
}

func (m *Metrics) granuleEvaluated() {
	if m != nil {
		m.evaluated.Inc()
	}
}

func (m *Metrics) granuleSkipped() {
	if m != nil {
		m.skipped.Inc()
	}
}

func (m *Metrics) granuleFetched() {
	if m != nil {
		m.fetched.Inc()
	}
}

func (m *Metrics) granuleFailed() {
	if m != nil {
		m.failed.Inc()
	}
}

func (m *Metrics) shotsRetained(n int) {
	if m != nil {
		m.shots.Add(float64(n))
	}
}
