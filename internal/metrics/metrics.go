// Package metrics exposes detection counters in Prometheus format. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"sentinel-guard/internal/threat"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry     *prometheus.Registry
	detections   *prometheus.CounterVec
	panics       *prometheus.CounterVec
	auditDropped prometheus.Counter
	reputation   *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_detections_total",
			Help: "Detections by threat type.",
		}, []string{"threat"}),
		panics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_detector_panics_total",
			Help: "Recovered detector panics by detector.",
		}, []string{"detector"}),
		auditDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_audit_dropped_total",
			Help: "Threat log records dropped because the audit queue was full.",
		}),
		reputation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_reputation_checks_total",
			Help: "External reputation lookups by outcome.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(m.detections, m.panics, m.auditDropped, m.reputation)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Detection(kind threat.Type) {
	if m == nil {
		return
	}
	m.detections.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) DetectorPanic(detector string) {
	if m == nil {
		return
	}
	m.panics.WithLabelValues(detector).Inc()
}

func (m *Metrics) AuditDropped() {
	if m == nil {
		return
	}
	m.auditDropped.Inc()
}

// ReputationCheck counts one external lookup. result is one of malicious,
// clean, error or limited.
func (m *Metrics) ReputationCheck(result string) {
	if m == nil {
		return
	}
	m.reputation.WithLabelValues(result).Inc()
}
