// Package metrics holds the Prometheus instruments for the sync engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aidr_events_applied_total",
			Help: "Inbound push events applied to the store, by event kind",
		},
		[]string{"kind"},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aidr_events_dropped_total",
			Help: "Inbound push messages dropped, by reason (malformed, invalid, unknown)",
		},
		[]string{"reason"},
	)

	Reconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aidr_reconnect_attempts_total",
			Help: "Reconnect attempts fired by the connection manager",
		},
	)

	ConnectionState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aidr_connection_state",
			Help: "1 for the current push connection state, 0 otherwise",
		},
		[]string{"state"},
	)

	TaskConfirmations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aidr_task_confirmations_total",
			Help: "Backend task status confirmations, by result (ok, failed, reverted)",
		},
		[]string{"result"},
	)

	MissionDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aidr_mission_decisions_total",
			Help: "Operator mission decisions, by decision and result",
		},
		[]string{"decision", "result"},
	)

	AgentStarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aidr_agent_starts_total",
			Help: "Agent stage start requests, by stage and result",
		},
		[]string{"stage", "result"},
	)

	Refetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aidr_refetches_total",
			Help: "Collection refetches triggered by change notifications, by collection and result",
		},
		[]string{"collection", "result"},
	)

	SnapshotDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aidr_snapshot_load_duration_seconds",
			Help:    "Time to load a snapshot from one source",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source", "status"},
	)
)

// SetConnectionState flips the state gauge so exactly one label reads 1.
func SetConnectionState(current string) {
	for _, s := range []string{"disconnected", "connecting", "connected"} {
		v := 0.0
		if s == current {
			v = 1
		}
		ConnectionState.WithLabelValues(s).Set(v)
	}
}
