package distance

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricLookupsTotal   = "distance_lookups_total"
	MetricLookupDuration = "distance_lookup_duration_seconds"
)

// Lookup outcome label values.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusTimeout = "timeout"
)

// Metrics contains Prometheus metrics for distance lookups.
type Metrics struct {
	lookupsTotal   *prometheus.CounterVec
	lookupDuration prometheus.Histogram
}

// NewMetrics creates distance lookup metrics. They are not registered;
// call Register to register them with a registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		lookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricLookupsTotal,
				Help: "Total number of distance provider lookups by outcome",
			},
			[]string{"status"},
		),
		lookupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricLookupDuration,
			Help:    "Histogram of distance provider lookup duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}),
	}

	// Pre-create label values so every outcome is exported from the start.
	for _, status := range []string{StatusOK, StatusError, StatusTimeout} {
		m.lookupsTotal.WithLabelValues(status)
	}
	return m
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveLookup records one lookup with its outcome and duration.
func (m *Metrics) ObserveLookup(status string, seconds float64) {
	if m == nil {
		return
	}
	m.lookupsTotal.WithLabelValues(status).Inc()
	m.lookupDuration.Observe(seconds)
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.lookupsTotal,
		m.lookupDuration,
	}
}
