// Package metrics exposes Prometheus counters/gauges for the event
// bus, the websocket fan-out, and the paper simulator, scraped at
// /metrics per A6. Grounded on chidi150c-coinbase's metrics.go
// (package-level CounterVec/Gauge declarations registered once and
// driven by small setter helpers), adapted from per-order/decision
// counters to this engine's event-bus/broadcast/simulator concerns.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every metric this engine exposes behind a private
// prometheus.Registry rather than the global DefaultRegisterer, so
// multiple engines (or tests) in one process never collide on
// duplicate registration.
type Registry struct {
	reg *prometheus.Registry

	EventsPublished prometheus.Counter
	EventsConsumed  prometheus.Counter
	EventsDropped   prometheus.Counter
	QueueSize       prometheus.Gauge

	BroadcastSent    *prometheus.CounterVec
	BroadcastFailed  *prometheus.CounterVec
	ClientsConnected prometheus.Gauge

	SignalsGenerated *prometheus.CounterVec
	PositionsOpened  *prometheus.CounterVec
	PositionsClosed  *prometheus.CounterVec
	RealizedPnL      prometheus.Gauge
	WalletBalance    prometheus.Gauge
}

// New builds a Registry with every metric registered, ready to be
// served by promhttp.HandlerFor(reg, ...) at /metrics.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,

		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_eventbus_events_published_total",
			Help: "Events published onto the event bus by any producer.",
		}),
		EventsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_eventbus_events_consumed_total",
			Help: "Events drained by the broadcaster worker.",
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_eventbus_events_dropped_total",
			Help: "Events dropped because the consumer was absent or the queue was full.",
		}),
		QueueSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_eventbus_queue_size",
			Help: "Current depth of the event bus's internal channel.",
		}),

		BroadcastSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_broadcast_sent_total",
			Help: "Messages successfully sent to websocket clients, by symbol.",
		}, []string{"symbol"}),
		BroadcastFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_broadcast_failed_total",
			Help: "Messages that failed to send and triggered client cleanup, by symbol.",
		}, []string{"symbol"}),
		ClientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_ws_clients_connected",
			Help: "Total websocket clients currently connected across all symbols.",
		}),

		SignalsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_signals_generated_total",
			Help: "Trading signals released by the confirmation gate, by symbol and direction.",
		}, []string{"symbol", "direction"}),
		PositionsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_positions_opened_total",
			Help: "Paper positions promoted PENDING -> OPEN, by symbol.",
		}, []string{"symbol"}),
		PositionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_positions_closed_total",
			Help: "Paper positions closed, by symbol and exit reason.",
		}, []string{"symbol", "reason"}),
		RealizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_realized_pnl_cumulative",
			Help: "Cumulative realized PnL across all closed positions.",
		}),
		WalletBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_wallet_balance",
			Help: "Current paper account wallet balance.",
		}),
	}

	reg.MustRegister(
		r.EventsPublished, r.EventsConsumed, r.EventsDropped, r.QueueSize,
		r.BroadcastSent, r.BroadcastFailed, r.ClientsConnected,
		r.SignalsGenerated, r.PositionsOpened, r.PositionsClosed,
		r.RealizedPnL, r.WalletBalance,
	)

	return r
}

// Gatherer exposes the underlying registry for the /metrics HTTP handler.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// PollSnapshot is the set of point-in-time values the composition root
// samples each tick to drive the gauges that have no natural counter
// call site (queue depth, connected clients, wallet balance).
type PollSnapshot struct {
	EventsPublished uint64
	EventsConsumed  uint64
	EventsDropped   uint64
	QueueSize       int
	ClientsConnected int
	WalletBalance   float64
	RealizedPnL     float64
}

// Apply updates every gauge/counter from one poll snapshot. Counters
// are monotonic Prometheus counters fed from cumulative totals, so
// Apply tracks the last-seen cumulative value per process and adds
// only the delta.
func (r *Registry) Apply(snap PollSnapshot, last *PollSnapshot) {
	if snap.EventsPublished > last.EventsPublished {
		r.EventsPublished.Add(float64(snap.EventsPublished - last.EventsPublished))
	}
	if snap.EventsConsumed > last.EventsConsumed {
		r.EventsConsumed.Add(float64(snap.EventsConsumed - last.EventsConsumed))
	}
	if snap.EventsDropped > last.EventsDropped {
		r.EventsDropped.Add(float64(snap.EventsDropped - last.EventsDropped))
	}
	r.QueueSize.Set(float64(snap.QueueSize))
	r.ClientsConnected.Set(float64(snap.ClientsConnected))
	r.WalletBalance.Set(snap.WalletBalance)
	r.RealizedPnL.Set(snap.RealizedPnL)
	*last = snap
}
