package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "quizmaster"

// Collectors groups the service's Prometheus instruments.
type Collectors struct {
	LiveSessions      prometheus.Gauge
	Commands          *prometheus.CounterVec
	Answers           *prometheus.CounterVec
	EventsPublished   *prometheus.CounterVec
	DroppedDeliveries *prometheus.CounterVec
	Connections       prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		LiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_sessions",
			Help:      "Sessions currently running a tick loop.",
		}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_commands_total",
			Help:      "Commands applied to sessions by kind and outcome.",
		}, []string{"kind", "outcome"}),
		Answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_total",
			Help:      "Answer submissions by outcome.",
		}, []string{"outcome"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Session events handed to the transport by type.",
		}, []string{"type"}),
		DroppedDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_dropped_total",
			Help:      "Messages not delivered to a connection because its queue was full.",
		}, []string{"type"}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Open WebSocket connections.",
		}),
	}
	reg.MustRegister(c.LiveSessions, c.Commands, c.Answers, c.EventsPublished, c.DroppedDeliveries, c.Connections)
	return c
}

// CommandApplied counts a command outcome. Answer submissions are also counted separately.
func (c *Collectors) CommandApplied(kind, outcome string) {
	c.Commands.WithLabelValues(kind, outcome).Inc()
	if kind == "submit_answer" {
		c.Answers.WithLabelValues(outcome).Inc()
	}
}

func (c *Collectors) SessionOpened() { c.LiveSessions.Inc() }
func (c *Collectors) SessionClosed() { c.LiveSessions.Dec() }

// EventPublished counts an outbound event.
func (c *Collectors) EventPublished(eventType string) {
	c.EventsPublished.WithLabelValues(eventType).Inc()
}

// DeliveryDropped counts a message dropped for a slow connection.
func (c *Collectors) DeliveryDropped(messageType string) {
	c.DroppedDeliveries.WithLabelValues(messageType).Inc()
}

func (c *Collectors) ConnectionOpened() { c.Connections.Inc() }
func (c *Collectors) ConnectionClosed() { c.Connections.Dec() }
