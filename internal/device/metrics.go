package device

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the pool's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	dispatches       *prometheus.CounterVec
	pollFailures     *prometheus.CounterVec
	online           prometheus.Gauge
	telemetryDropped prometheus.Counter
}

// NewMetrics creates the pool collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kasabridge",
			Name:      "dispatches_total",
			Help:      "Commands dispatched to devices by operation and result.",
		}, []string{"op", "result"}),
		pollFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kasabridge",
			Name:      "poll_failures_total",
			Help:      "Failed device polls by subtype.",
		}, []string{"subtype"}),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kasabridge",
			Name:      "devices_online",
			Help:      "Devices currently bound to a live transport.",
		}),
		telemetryDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kasabridge",
			Name:      "telemetry_dropped_total",
			Help:      "Telemetry notifications that failed or timed out.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.dispatches, m.pollFailures, m.online, m.telemetryDropped)
	}
	return m
}

func (m *Metrics) dispatch(op, result string) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(op, result).Inc()
}

func (m *Metrics) pollFailed(kind string) {
	if m == nil {
		return
	}
	m.pollFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) setOnline(n int) {
	if m == nil {
		return
	}
	m.online.Set(float64(n))
}

func (m *Metrics) telemetryDrop() {
	if m == nil {
		return
	}
	m.telemetryDropped.Inc()
}
