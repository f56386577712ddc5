package workspace

import "github.com/prometheus/client_golang/prometheus"

// Metrics exported by a workspace:
//
//	viewsync_messages_total{kind}           messages stamped by the bus
//	viewsync_outcomes_total{kind,outcome}   what adapters did with them
//	viewsync_faults_total{kind}             subscriber failures the bus isolated
//	viewsync_viewports                      mounted viewports
//	viewsync_last_seq                       highest sequence number issued
type Metrics struct {
	Messages  *prometheus.CounterVec
	Outcomes  *prometheus.CounterVec
	Faults    *prometheus.CounterVec
	Viewports prometheus.Gauge
	LastSeq   prometheus.Gauge
}

// NewMetrics builds the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "viewsync_messages_total",
				Help: "Messages published on the sync bus",
			},
			[]string{"kind"},
		),
		Outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "viewsync_outcomes_total",
				Help: "Adapter outcomes split by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		Faults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "viewsync_faults_total",
				Help: "Subscriber failures isolated by the bus",
			},
			[]string{"kind"},
		),
		Viewports: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "viewsync_viewports",
				Help: "Mounted viewports",
			},
		),
		LastSeq: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "viewsync_last_seq",
				Help: "Highest sequence number issued by the bus",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Messages, m.Outcomes, m.Faults, m.Viewports, m.LastSeq)
	}
	return m
}
