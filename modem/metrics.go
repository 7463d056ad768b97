package modem

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the protocol engine's Prometheus collectors. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	CommandsTotal   *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	QueueDepth      *prometheus.GaugeVec
	Timeouts        *prometheus.CounterVec
	Unsolicited     *prometheus.CounterVec
	Unrecognized    *prometheus.CounterVec
	ChannelMode     *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "modemctl",
				Subsystem: "dispatcher",
				Name:      "commands_total",
				Help:      "Completed commands by channel, kind and outcome",
			},
			[]string{"channel", "kind", "outcome"},
		),
		CommandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "modemctl",
				Subsystem: "dispatcher",
				Name:      "command_duration_seconds",
				Help:      "Time from first transmission to completion",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"channel", "kind"},
		),
		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "modemctl",
				Subsystem: "dispatcher",
				Name:      "queue_depth",
				Help:      "Commands waiting per channel",
			},
			[]string{"channel"},
		),
		Timeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "modemctl",
				Subsystem: "dispatcher",
				Name:      "timeouts_total",
				Help:      "Command steps that timed out",
			},
			[]string{"channel"},
		),
		Unsolicited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "modemctl",
				Subsystem: "silo",
				Name:      "unsolicited_total",
				Help:      "Unsolicited lines parsed per silo and prefix",
			},
			[]string{"silo", "prefix"},
		),
		Unrecognized: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "modemctl",
				Subsystem: "silo",
				Name:      "unrecognized_total",
				Help:      "Lines that matched no reply and no silo entry",
			},
			[]string{"channel"},
		),
		ChannelMode: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "modemctl",
				Subsystem: "channel",
				Name:      "mode",
				Help:      "Transport mode per channel (0=command, 1=data)",
			},
			[]string{"channel"},
		),
	}
}

// Register adds every collector to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	var errs []error
	for _, c := range []prometheus.Collector{
		m.CommandsTotal, m.CommandDuration, m.QueueDepth, m.Timeouts,
		m.Unsolicited, m.Unrecognized, m.ChannelMode,
	} {
		if err := reg.Register(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Metrics) commandDone(ch ID, kind string, rsp *Response, began time.Time) {
	if m == nil {
		return
	}
	outcome := "ok"
	switch {
	case rsp.TimedOut:
		outcome = "timeout"
	case rsp.Err != nil:
		outcome = ClassOf(rsp.Err).String()
	}
	label := ch.String()
	m.CommandsTotal.WithLabelValues(label, kind, outcome).Inc()
	if !began.IsZero() {
		m.CommandDuration.WithLabelValues(label, kind).Observe(time.Since(began).Seconds())
	}
}

func (m *Metrics) queueDepth(ch ID, n int) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues(ch.String()).Set(float64(n))
}

func (m *Metrics) timeout(ch ID) {
	if m == nil {
		return
	}
	m.Timeouts.WithLabelValues(ch.String()).Inc()
}

func (m *Metrics) unsolicited(silo, prefix string) {
	if m == nil {
		return
	}
	m.Unsolicited.WithLabelValues(silo, prefix).Inc()
}

func (m *Metrics) unrecognized(ch ID) {
	if m == nil {
		return
	}
	m.Unrecognized.WithLabelValues(ch.String()).Inc()
}

func (m *Metrics) mode(ch ID, mode Mode) {
	if m == nil {
		return
	}
	m.ChannelMode.WithLabelValues(ch.String()).Set(float64(mode))
}
