// Package metrics defines the prometheus instrumentation for telemd.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the service's collectors around a private registry, so
// multiple instances (e.g. in tests) never collide on registration.
type Metrics struct {
	// FramesIngested counts telemetry frames applied to the store, by group.
	FramesIngested *prometheus.CounterVec

	// LinesDropped counts socket lines discarded because they failed to decode.
	LinesDropped prometheus.Counter

	// SocketReconnects counts reconnect attempts of the socket backend.
	SocketReconnects prometheus.Counter

	// ActiveSessions tracks currently connected stream sessions.
	ActiveSessions prometheus.Gauge

	// FramesPushed counts snapshots pushed to stream clients.
	FramesPushed prometheus.Counter

	registry *prometheus.Registry
}

// New creates the collectors and registers them, together with the standard
// Go and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		FramesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemd_frames_ingested_total",
			Help: "Telemetry frames applied to the store, by group.",
		}, []string{"group"}),
		LinesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemd_socket_lines_dropped_total",
			Help: "Socket lines discarded because they were not valid JSON.",
		}),
		SocketReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemd_socket_reconnects_total",
			Help: "Reconnect attempts made by the socket ingestion backend.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "telemd_stream_sessions_active",
			Help: "Currently connected telemetry stream sessions.",
		}),
		FramesPushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemd_stream_frames_pushed_total",
			Help: "Snapshots pushed to stream clients.",
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.FramesIngested,
		m.LinesDropped,
		m.SocketReconnects,
		m.ActiveSessions,
		m.FramesPushed,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler returns the HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
