package ranking

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricRankRequestsTotal = "farm_rank_requests_total"
	MetricRankDuration      = "farm_rank_duration_seconds"
	MetricRankPageSize      = "farm_rank_page_size"
)

// outcomeOK labels successful rank calls. Failures are labeled with Kind.String().
const outcomeOK = "ok"

// Metrics contains Prometheus metrics for the ranking pipeline.
type Metrics struct {
	requestsTotal *prometheus.CounterVec
	duration      prometheus.Histogram
	pageSize      prometheus.Histogram
}

// NewMetrics creates pipeline metrics. They are not registered;
// call Register to register them with a registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRankRequestsTotal,
				Help: "Total number of farm ranking requests by outcome",
			},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricRankDuration,
			Help:    "Histogram of farm ranking duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		pageSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricRankPageSize,
			Help:    "Histogram of the number of farms returned per ranking request",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
		}),
	}

	for _, outcome := range []string{
		outcomeOK,
		KindEntityNotFound.String(),
		KindInvalidParameter.String(),
		KindStoreUnavailable.String(),
		KindUpstreamUnavailable.String(),
	} {
		m.requestsTotal.WithLabelValues(outcome)
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

// observe records one rank call. Page size is only observed on success.
func (m *Metrics) observe(err error, seconds float64, pageSize int) {
	if m == nil {
		return
	}
	outcome := outcomeOK
	if err != nil {
		outcome = KindOf(err).String()
	}
	m.requestsTotal.WithLabelValues(outcome).Inc()
	m.duration.Observe(seconds)
	if err == nil {
		m.pageSize.Observe(float64(pageSize))
	}
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.requestsTotal,
		m.duration,
		m.pageSize,
	}
}
