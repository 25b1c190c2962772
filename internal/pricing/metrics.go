package pricing

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts rule evaluations that collapsed to zero.
type Metrics struct {
	failures *prometheus.CounterVec
}

// NewMetrics registers the pricing collectors. A nil registerer uses the
// Prometheus default registry.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pda_formula_failures_total",
		Help: "Calculation rules that failed to evaluate and were priced at zero.",
	}, []string{"method"})
	registerer.MustRegister(failures)
	return &Metrics{failures: failures}
}

func (m *Metrics) observeFailure(method Method) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(string(method)).Inc()
}
