package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts classification outcomes. A nil *Metrics records nothing.
type Metrics struct {
	rows       *prometheus.CounterVec
	duplicates *prometheus.CounterVec
	executions *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		rows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "otter",
			Subsystem: "reconcile",
			Name:      "rows_total",
			Help:      "Rows classified, by source and action.",
		}, []string{"source", "action"}),
		duplicates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "otter",
			Subsystem: "reconcile",
			Name:      "duplicate_claims_total",
			Help:      "Rows skipped because their best match was already claimed in the run.",
		}, []string{"source"}),
		executions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "otter",
			Subsystem: "reconcile",
			Name:      "executions_total",
			Help:      "Execute runs, by source and outcome.",
		}, []string{"source", "outcome"}),
	}
}

func (m *Metrics) observeRows(source Source, results []MatchResult) {
	if m == nil {
		return
	}
	for _, r := range results {
		m.rows.WithLabelValues(string(source), string(r.Action)).Inc()
	}
}

func (m *Metrics) duplicateClaim(source Source) {
	if m == nil {
		return
	}
	m.duplicates.WithLabelValues(string(source)).Inc()
}

func (m *Metrics) execution(source Source, err error) {
	if m == nil {
		return
	}
	outcome := "committed"
	if err != nil {
		outcome = "failed"
	}
	m.executions.WithLabelValues(string(source), outcome).Inc()
}
