// Package metrics exposes the Prometheus collectors named in SPEC_FULL.md §3:
// breakpoint hits, pause duration, active sessions, request counts, and cache
// scan duration. Grounded on the teacher's pkg/metrics.Metrics — same
// registry-per-process shape and promhttp.Handler — narrowed to this
// server's own metric set instead of a generic HTTP request/duration/error
// trio.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the debug adapter records against.
type Metrics struct {
	BreakpointHits   *prometheus.CounterVec
	PauseDuration    prometheus.Histogram
	ActiveSessions   prometheus.Gauge
	RequestsTotal    *prometheus.CounterVec
	CacheScanSeconds prometheus.Histogram

	registry *prometheus.Registry
}

// New creates and registers the debug adapter's metrics in a private
// registry (spec.md ambient stack; kept private rather than using the
// global default registry so tests can construct independent instances).
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		BreakpointHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dap",
			Name:      "breakpoint_hits_total",
			Help:      "Breakpoint hits by kind label.",
		}, []string{"kind"}),
		PauseDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dap",
			Name:      "pause_duration_seconds",
			Help:      "Time from a stopped event to the matching resume.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dap",
			Name:      "active_sessions",
			Help:      "Number of currently connected DAP sessions (0 or 1).",
		}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dap",
			Name:      "requests_total",
			Help:      "DAP requests handled, by command.",
		}, []string{"command"}),
		CacheScanSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dap",
			Name:      "cache_scan_duration_seconds",
			Help:      "Duration of a full binary cache namespace scan.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		registry: registry,
	}

	registry.MustRegister(
		m.BreakpointHits,
		m.PauseDuration,
		m.ActiveSessions,
		m.RequestsTotal,
		m.CacheScanSeconds,
	)
	return m
}

// RecordRequest increments the per-command request counter.
func (m *Metrics) RecordRequest(command string) {
	m.RequestsTotal.WithLabelValues(command).Inc()
}

// RecordBreakpointHit increments the breakpoint-hit counter for kind. The
// DAP server records every breakpoint stop under kind "breakpoint"; it does
// not separate source breakpoints from function breakpoints.
func (m *Metrics) RecordBreakpointHit(kind string) {
	m.BreakpointHits.WithLabelValues(kind).Inc()
}

// RecordPause observes the elapsed pause duration.
func (m *Metrics) RecordPause(d time.Duration) {
	m.PauseDuration.Observe(d.Seconds())
}

// RecordScan observes a binary cache scan's duration.
func (m *Metrics) RecordScan(d time.Duration) {
	m.CacheScanSeconds.Observe(d.Seconds())
}

// Handler serves the Prometheus exposition format for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
