package telemetry

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aegisai/aegis-oss/pkg/domain"
)

// PrometheusMetrics exposes pipeline counters on a dedicated registry for
// the admin /metrics endpoint. It implements domain.EventSink so it can be
// registered on the audit log fan-out.
type PrometheusMetrics struct {
	eventsTotal     *prometheus.CounterVec
	rejectionsTotal *prometheus.CounterVec
	sessionsActive  prometheus.Gauge
	configReloads   *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewPrometheusMetrics creates the registry and registers all collectors.
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	m := &PrometheusMetrics{
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aegis_security_events_total",
				Help: "Security events recorded by type and severity",
			},
			[]string{"type", "severity"},
		),

		rejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aegis_rejections_total",
				Help: "Pipeline rejections by error kind",
			},
			[]string{"kind"},
		),

		sessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "aegis_sessions_active",
				Help: "Number of live sessions in the consumption limiter",
			},
		),

		configReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aegis_config_reloads_total",
				Help: "Configuration reload attempts by status",
			},
			[]string{"status"},
		),

		registry: registry,
	}

	registry.MustRegister(m.eventsTotal, m.rejectionsTotal, m.sessionsActive, m.configReloads)
	return m
}

// RecordEvent implements domain.EventSink.
func (m *PrometheusMetrics) RecordEvent(_ context.Context, event domain.SecurityEvent) {
	m.eventsTotal.WithLabelValues(string(event.Type), string(event.Severity)).Inc()
	if event.Kind != "" {
		m.rejectionsTotal.WithLabelValues(string(event.Kind)).Inc()
	}
}

// SetActiveSessions updates the live session gauge.
func (m *PrometheusMetrics) SetActiveSessions(n int) {
	m.sessionsActive.Set(float64(n))
}

// IncConfigReload counts a configuration reload attempt.
func (m *PrometheusMetrics) IncConfigReload(ok bool) {
	status := "success"
	if !ok {
		status = "failure"
	}
	m.configReloads.WithLabelValues(status).Inc()
}

// Handler returns the scrape handler for the admin server.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}
