package vizsession

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes session counters. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	resolutions     *prometheus.CounterVec
	rejections      *prometheus.CounterVec
	persistFailures prometheus.Counter
	liveSessions    prometheus.Gauge
}

// NewMetrics creates the session collectors and registers them with reg.
// A nil reg leaves the collectors unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vizsession_resolutions_total",
				Help: "Session resolutions by outcome (hit, created, error).",
			},
			[]string{"result"},
		),
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vizsession_auth_rejections_total",
				Help: "Requests rejected before reaching application logic, by reason.",
			},
			[]string{"reason"},
		),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vizsession_persist_failures_total",
			Help: "Session saves that failed at the end of a request.",
		}),
		liveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vizsession_live_sessions",
			Help: "Sessions held by the registry.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.resolutions, m.rejections, m.persistFailures, m.liveSessions)
	}
	return m
}

func (m *Metrics) resolved(result string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(result).Inc()
	if result == "created" {
		m.liveSessions.Inc()
	}
}

func (m *Metrics) rejected(reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) persistFailed() {
	if m == nil {
		return
	}
	m.persistFailures.Inc()
}
