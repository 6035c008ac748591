package live

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/pigi/quizmaster/internal/session"
	ws "github.com/pigi/quizmaster/pkg/http/ws"
)

// Metrics receives transport instrumentation.
type Metrics interface {
	EventPublished(eventType string)
	ConnectionOpened()
	ConnectionClosed()
}

type nopMetrics struct{}

func (nopMetrics) EventPublished(string) {}
func (nopMetrics) ConnectionOpened()     {}
func (nopMetrics) ConnectionClosed()     {}

// Delivery moves frames towards the connections.
type Delivery interface {
	Deliver(ctx context.Context, f Frame) error
}

// HubDelivery delivers straight into the local hub.
type HubDelivery struct {
	Hub *ws.Hub
}

func (d HubDelivery) Deliver(_ context.Context, f Frame) error {
	return Dispatch(d.Hub, f)
}

// Publisher is the session.Publisher used in production: it encodes every
// envelope once and hands it to the configured delivery path.
type Publisher struct {
	delivery Delivery
	hub      *ws.Hub
	metrics  Metrics
	logger   zerolog.Logger
}

var (
	_ session.Publisher = (*Publisher)(nil)
	_ session.Resyncer  = (*Publisher)(nil)
)

// NewPublisher builds a publisher. hub receives resync requests and metrics
// may be nil.
func NewPublisher(delivery Delivery, hub *ws.Hub, metrics Metrics, logger zerolog.Logger) *Publisher {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Publisher{
		delivery: delivery,
		hub:      hub,
		metrics:  metrics,
		logger:   logger.With().Str("component", "live_publisher").Logger(),
	}
}

// Publish implements session.Publisher.
func (p *Publisher) Publish(ctx context.Context, env session.Envelope) error {
	f, err := NewFrame(env)
	if err != nil {
		return err
	}
	p.metrics.EventPublished(f.Type)
	return p.delivery.Deliver(ctx, f)
}

// Resync closes the local connections of a session after an event could not
// be delivered. Clients reconnect and start again from a snapshot.
func (p *Publisher) Resync(sessionID string) {
	if p.hub == nil {
		return
	}
	p.logger.Warn().Str("session_id", sessionID).Int("connections", p.hub.Count(sessionID)).Msg("event lost, closing connections for resync")
	p.hub.CloseConnections(sessionID)
}
