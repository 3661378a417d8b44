// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Confirmation outcomes.
const (
	OutcomeRequested = "requested"
	OutcomeApplied   = "applied"
	OutcomeRejected  = "rejected"
	OutcomeExpired   = "expired"
	OutcomeFailed    = "failed"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	confirmations *prometheus.CounterVec
	pageRows      *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		confirmations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salesdesk",
			Name:      "confirmations_total",
			Help:      "Confirmation gate transitions by action and outcome.",
		}, []string{"action", "outcome"}),
		pageRows: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "salesdesk",
			Name:      "page_rows",
			Help:      "Rows returned per list page.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 75, 100},
		}, []string{"entity"}),
	}
	reg.MustRegister(m.confirmations, m.pageRows)
	return m
}

func (m *Metrics) Confirmation(action, outcome string) {
	if m == nil {
		return
	}
	m.confirmations.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) PageRows(entity string, n int) {
	if m == nil {
		return
	}
	m.pageRows.WithLabelValues(entity).Observe(float64(n))
}
