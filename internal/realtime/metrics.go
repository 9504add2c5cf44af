package realtime

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the registry's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	connections   prometheus.Gauge
	opened        prometheus.Counter
	frames        *prometheus.CounterVec
	writeFailures prometheus.Counter
	slowConsumers prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "picshare",
			Subsystem: "realtime",
			Name:      "connections",
			Help:      "Open push connections.",
		}),
		opened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "picshare",
			Subsystem: "realtime",
			Name:      "connections_opened_total",
			Help:      "Push connections opened since start.",
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "picshare",
			Subsystem: "realtime",
			Name:      "frames_sent_total",
			Help:      "Frames written to push connections, by frame type.",
		}, []string{"type"}),
		writeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "picshare",
			Subsystem: "realtime",
			Name:      "write_failures_total",
			Help:      "Frame writes that failed and closed their connection.",
		}),
		slowConsumers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "picshare",
			Subsystem: "realtime",
			Name:      "slow_consumers_total",
			Help:      "Connections closed because their send queue was full.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.connections, m.opened, m.frames, m.writeFailures, m.slowConsumers)
	}
	return m
}

func (m *Metrics) connOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
	m.opened.Inc()
}

func (m *Metrics) connClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

func (m *Metrics) frameSent(kind string) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(kind).Inc()
}

func (m *Metrics) writeFailed() {
	if m == nil {
		return
	}
	m.writeFailures.Inc()
}

func (m *Metrics) slowConsumer() {
	if m == nil {
		return
	}
	m.slowConsumers.Inc()
}
