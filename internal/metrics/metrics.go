package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's collectors. A nil *Metrics is valid and records nothing,
// which keeps tests free of registry setup.
type Metrics struct {
	Connections            prometheus.Gauge
	LiveUsers              prometheus.Gauge
	Published              prometheus.Counter
	Dropped                prometheus.Counter
	PresenceTransitions    *prometheus.CounterVec
	SweepDemotions         prometheus.Counter
	NotificationsCreated   prometheus.Counter
	NotificationsDelivered prometheus.Counter
	ProtocolErrors         *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trackerlive_connections",
			Help: "Live transport connections.",
		}),
		LiveUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trackerlive_live_users",
			Help: "Users with at least one live connection.",
		}),
		Published: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trackerlive_messages_published_total",
			Help: "Messages queued to connections.",
		}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trackerlive_messages_dropped_total",
			Help: "Messages dropped because a connection could not accept them.",
		}),
		PresenceTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trackerlive_presence_transitions_total",
			Help: "Presence status changes by target status.",
		}, []string{"status"}),
		SweepDemotions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trackerlive_sweep_demotions_total",
			Help: "Presences forced offline by the stale sweep.",
		}),
		NotificationsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trackerlive_notifications_created_total",
			Help: "Notifications persisted.",
		}),
		NotificationsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trackerlive_notifications_delivered_total",
			Help: "Notifications pushed to a live inbox.",
		}),
		ProtocolErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trackerlive_protocol_errors_total",
			Help: "Inbound signals rejected, by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		m.Connections,
		m.LiveUsers,
		m.Published,
		m.Dropped,
		m.PresenceTransitions,
		m.SweepDemotions,
		m.NotificationsCreated,
		m.NotificationsDelivered,
		m.ProtocolErrors,
	)
	return m
}

func (m *Metrics) SetConnections(n int) {
	if m != nil {
		m.Connections.Set(float64(n))
	}
}

func (m *Metrics) SetLiveUsers(n int) {
	if m != nil {
		m.LiveUsers.Set(float64(n))
	}
}

func (m *Metrics) MessagePublished() {
	if m != nil {
		m.Published.Inc()
	}
}

func (m *Metrics) MessageDropped() {
	if m != nil {
		m.Dropped.Inc()
	}
}

func (m *Metrics) PresenceTransition(status string) {
	if m != nil {
		m.PresenceTransitions.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) SweepDemotion() {
	if m != nil {
		m.SweepDemotions.Inc()
	}
}

func (m *Metrics) NotificationCreated() {
	if m != nil {
		m.NotificationsCreated.Inc()
	}
}

func (m *Metrics) NotificationDelivered() {
	if m != nil {
		m.NotificationsDelivered.Inc()
	}
}

func (m *Metrics) ProtocolError(reason string) {
	if m != nil {
		m.ProtocolErrors.WithLabelValues(reason).Inc()
	}
}
