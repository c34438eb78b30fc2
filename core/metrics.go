package core

// core/metrics.go — Prometheus instrumentation for the client. Components
// accept a nil *Telemetry; every recording method is nil-safe so telemetry
// stays strictly optional.

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Telemetry owns a private registry with the client's gauges and counters.
type Telemetry struct {
	registry *prometheus.Registry

	connState     prometheus.Gauge
	reconnects    prometheus.Counter
	pendingWrites prometheus.Gauge
	factCount     prometheus.Gauge
	queries       prometheus.Counter
	updates       prometheus.Counter
}

// NewTelemetry builds a telemetry instance with a fresh registry.
func NewTelemetry() *Telemetry {
	t := &Telemetry{registry: prometheus.NewRegistry()}
	t.connState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "trisync_connection_state",
		Help: "Connection state: 0 disconnected, 1 connecting, 2 connected.",
	})
	t.reconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trisync_reconnects_total",
		Help: "Reconnect attempts made after an unexpected transport close.",
	})
	t.pendingWrites = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "trisync_pending_writes",
		Help: "Writes sent to the server and not yet acknowledged.",
	})
	t.factCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "trisync_store_facts",
		Help: "Facts currently held by the local store.",
	})
	t.queries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trisync_queries_total",
		Help: "Queries resolved.",
	})
	t.updates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trisync_triple_updates_total",
		Help: "Triple update batches committed.",
	})
	t.registry.MustRegister(t.connState, t.reconnects, t.pendingWrites,
		t.factCount, t.queries, t.updates)
	return t
}

// Registry exposes the underlying registry for embedding into a larger
// metrics surface.
func (t *Telemetry) Registry() *prometheus.Registry { return t.registry }

// Handler returns an HTTP handler serving the metrics.
func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

func (t *Telemetry) setConnState(state ConnState) {
	if t == nil {
		return
	}
	t.connState.Set(float64(state))
}

func (t *Telemetry) countReconnect() {
	if t == nil {
		return
	}
	t.reconnects.Inc()
}

func (t *Telemetry) setPendingWrites(n int) {
	if t == nil {
		return
	}
	t.pendingWrites.Set(float64(n))
}

func (t *Telemetry) setFactCount(n int) {
	if t == nil {
		return
	}
	t.factCount.Set(float64(n))
}

func (t *Telemetry) countQuery() {
	if t == nil {
		return
	}
	t.queries.Inc()
}

func (t *Telemetry) countUpdate() {
	if t == nil {
		return
	}
	t.updates.Inc()
}
