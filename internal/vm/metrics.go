package vm

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts executed transactions. Each runtime owns its collectors;
// callers decide which registry to expose them on.
type Metrics struct {
	Transactions *prometheus.CounterVec
	ComputeUnits *prometheus.HistogramVec
}

// NewMetrics creates the runtime collectors and registers them on reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_transactions_total",
				Help: "Transactions executed, by handler and outcome",
			},
			[]string{"handler", "status", "error_kind"},
		),
		ComputeUnits: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tally_compute_units",
				Help:    "Compute units consumed per transaction",
				Buckets: prometheus.ExponentialBuckets(100, 2, 12),
			},
			[]string{"handler"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Transactions, m.ComputeUnits)
	}
	return m
}

func (m *Metrics) observe(handler, status, kind string, units uint64) {
	m.Transactions.WithLabelValues(handler, status, kind).Inc()
	m.ComputeUnits.WithLabelValues(handler).Observe(float64(units))
}

// rejected counts a transaction turned away before it could be journaled.
func (m *Metrics) rejected(kind string) {
	m.Transactions.WithLabelValues("", "rejected", kind).Inc()
}
