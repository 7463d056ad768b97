package datacall

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the data-call collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Transitions *prometheus.CounterVec
	Failures    *prometheus.CounterVec
	Active      prometheus.Gauge
}

func NewMetrics() *Metrics {
	return &Metrics{
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "modemctl",
				Subsystem: "datacall",
				Name:      "transitions_total",
				Help:      "Context state transitions",
			},
			[]string{"from", "to"},
		),
		Failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "modemctl",
				Subsystem: "datacall",
				Name:      "setup_failures_total",
				Help:      "Failed session setups by fail cause",
			},
			[]string{"cause"},
		),
		Active: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "modemctl",
				Subsystem: "datacall",
				Name:      "active_sessions",
				Help:      "Contexts in the active state",
			},
		),
	}
}

// Register adds the collectors to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	return errors.Join(
		reg.Register(m.Transitions),
		reg.Register(m.Failures),
		reg.Register(m.Active),
	)
}

func (m *Metrics) transition(from, to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to).Inc()
	switch {
	case to == string(StateActive):
		m.Active.Inc()
	case from == string(StateActive):
		m.Active.Dec()
	}
}

func (m *Metrics) failure(cause FailCause) {
	if m == nil {
		return
	}
	m.Failures.WithLabelValues(cause.String()).Inc()
}
