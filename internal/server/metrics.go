package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons recorded on frames_dropped_total.
const (
	dropMalformed     = "malformed"
	dropUnknownType   = "unknown_type"
	dropInvalidRoom   = "invalid_room"
	dropInvalidUser   = "invalid_username"
	dropEmptyText     = "empty_text"
	dropNotMember     = "not_member"
	dropRateLimited   = "rate_limited"
	dropHubStopped    = "hub_stopped"
	dropEncodeFailure = "encode_failure"
)

// metrics holds the Prometheus collectors for one server instance.
type metrics struct {
	activeConnections prometheus.Gauge
	roomOccupancy     *prometheus.GaugeVec
	framesReceived    *prometheus.CounterVec
	framesDropped     *prometheus.CounterVec
	broadcasts        *prometheus.CounterVec
	deliveryFailures  prometheus.Counter
	heartbeatKills    prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)

	return &metrics{
		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "roomchat",
			Name:      "active_connections",
			Help:      "Number of registered WebSocket connections",
		}),

		roomOccupancy: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "roomchat",
			Name:      "room_occupancy",
			Help:      "Distinct usernames present, by room",
		}, []string{"room"}),

		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roomchat",
			Name:      "frames_received_total",
			Help:      "Inbound frames accepted for processing, by type",
		}, []string{"type"}),

		framesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roomchat",
			Name:      "frames_dropped_total",
			Help:      "Inbound frames dropped without effect, by reason",
		}, []string{"reason"}),

		broadcasts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roomchat",
			Name:      "broadcasts_total",
			Help:      "Broadcasts emitted, by payload type",
		}, []string{"type"}),

		deliveryFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "roomchat",
			Name:      "delivery_failures_total",
			Help:      "Broadcast deliveries that could not be queued for a connection",
		}),

		heartbeatKills: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "roomchat",
			Name:      "heartbeat_terminations_total",
			Help:      "Connections terminated for missing a heartbeat",
		}),
	}
}

func (m *metrics) dropped(reason string) {
	m.framesDropped.WithLabelValues(reason).Inc()
}
