// Package metrics holds the Prometheus collectors shared by the connection
// framework and the chat core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks server activity. A nil *Metrics is valid and records nothing.
type Metrics struct {
	activeSessions    prometheus.Gauge
	sessionsCreated   prometheus.Counter
	sessionsClosed    prometheus.Counter
	messagesReceived  *prometheus.CounterVec
	messagesSent      *prometheus.CounterVec
	logins            prometheus.Counter
	loginRejections   *prometheus.CounterVec
	broadcasts        prometheus.Counter
	commands          *prometheus.CounterVec
	lifecycleState    *prometheus.GaugeVec
	lifecycleChanges  *prometheus.CounterVec
	participantsGauge prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "echochat_active_sessions",
			Help: "Number of currently connected sessions",
		}),
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "echochat_sessions_created_total",
			Help: "Total number of accepted sessions",
		}),
		sessionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "echochat_sessions_closed_total",
			Help: "Total number of sessions that ended",
		}),
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "echochat_messages_received_total",
			Help: "Lines received from sessions, by transport",
		}, []string{"transport"}),
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "echochat_messages_sent_total",
			Help: "Lines written to sessions, by kind",
		}, []string{"kind"}),
		logins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "echochat_logins_total",
			Help: "Successful login declarations",
		}),
		loginRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "echochat_login_rejections_total",
			Help: "Sessions closed by the login gate, by reason",
		}, []string{"reason"}),
		broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "echochat_broadcasts_total",
			Help: "Chat lines fanned out to participants",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "echochat_operator_commands_total",
			Help: "Operator console commands, by keyword",
		}, []string{"command"}),
		lifecycleState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "echochat_lifecycle_state",
			Help: "1 for the current lifecycle state, 0 otherwise",
		}, []string{"state"}),
		lifecycleChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "echochat_lifecycle_transitions_total",
			Help: "Lifecycle transitions, by target state",
		}, []string{"to"}),
		participantsGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "echochat_participants",
			Help: "Number of logged-in sessions",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.activeSessions,
			m.sessionsCreated,
			m.sessionsClosed,
			m.messagesReceived,
			m.messagesSent,
			m.logins,
			m.loginRejections,
			m.broadcasts,
			m.commands,
			m.lifecycleState,
			m.lifecycleChanges,
			m.participantsGauge,
		)
	}

	return m
}

// RecordActiveSessions sets the current session count
func (m *Metrics) RecordActiveSessions(count int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(count))
}

// RecordSessionCreated counts an accepted session
func (m *Metrics) RecordSessionCreated() {
	if m == nil {
		return
	}
	m.sessionsCreated.Inc()
}

// RecordSessionDisconnected counts a session that ended
func (m *Metrics) RecordSessionDisconnected() {
	if m == nil {
		return
	}
	m.sessionsClosed.Inc()
}

// RecordMessageReceived counts an inbound line
func (m *Metrics) RecordMessageReceived(transport string) {
	if m == nil {
		return
	}
	m.messagesReceived.WithLabelValues(transport).Inc()
}

// RecordMessageSent counts an outbound line
func (m *Metrics) RecordMessageSent(kind string) {
	if m == nil {
		return
	}
	m.messagesSent.WithLabelValues(kind).Inc()
}

// RecordLogin counts a successful login
func (m *Metrics) RecordLogin() {
	if m == nil {
		return
	}
	m.logins.Inc()
}

// RecordLoginRejected counts a session closed by the login gate
func (m *Metrics) RecordLoginRejected(reason string) {
	if m == nil {
		return
	}
	m.loginRejections.WithLabelValues(reason).Inc()
}

// RecordBroadcast counts one fan-out
func (m *Metrics) RecordBroadcast() {
	if m == nil {
		return
	}
	m.broadcasts.Inc()
}

// RecordCommand counts an operator command
func (m *Metrics) RecordCommand(name string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(name).Inc()
}

// RecordParticipants sets the logged-in session count
func (m *Metrics) RecordParticipants(count int64) {
	if m == nil {
		return
	}
	m.participantsGauge.Set(float64(count))
}

// RecordLifecycle marks current as the active state out of all.
func (m *Metrics) RecordLifecycle(current string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		m.lifecycleState.WithLabelValues(s).Set(v)
	}
	m.lifecycleChanges.WithLabelValues(current).Inc()
}
