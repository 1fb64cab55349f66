// Package events publishes order events from the outbox to NATS.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukerupert/cakery/internal/domain"
	"github.com/dukerupert/cakery/internal/postgres"
	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is prepended to the event type to form the subject.
const DefaultSubjectPrefix = "cakery"

// Conn is the part of *nats.Conn the publisher needs.
type Conn interface {
	PublishMsg(m *nats.Msg) error
	FlushWithContext(ctx context.Context) error
}

var _ Conn = (*nats.Conn)(nil)

// Publisher sends outbox events to NATS. The event id travels in the
// Nats-Msg-Id header so a JetStream stream drops redeliveries.
type Publisher struct {
	conn   Conn
	prefix string
}

// NewPublisher creates a publisher for conn. An empty prefix uses
// DefaultSubjectPrefix.
func NewPublisher(conn Conn, prefix string) *Publisher {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Publisher{conn: conn, prefix: prefix}
}

// Subject returns the subject an event type is published on.
func (p *Publisher) Subject(eventType string) string {
	return p.prefix + "." + eventType
}

// Publish sends one event and waits for the server to acknowledge the flush.
func (p *Publisher) Publish(ctx context.Context, event postgres.OutboxEvent) error {
	const op = "events.publish"

	if event.EventType == "" {
		return domain.Invalid(op, "event type is required")
	}

	msg := nats.NewMsg(p.Subject(event.EventType))
	msg.Data = event.Payload
	msg.Header.Set(nats.MsgIdHdr, event.EventID.String())
	msg.Header.Set("Cakery-Aggregate-Id", event.AggregateID.String())
	msg.Header.Set("Cakery-Event-Type", event.EventType)

	if err := p.conn.PublishMsg(msg); err != nil {
		return classify(err, op)
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return classify(err, op)
	}
	return nil
}

func classify(err error, op string) error {
	switch {
	case errors.Is(err, nats.ErrConnectionClosed),
		errors.Is(err, nats.ErrConnectionDraining),
		errors.Is(err, nats.ErrTimeout),
		errors.Is(err, nats.ErrNoServers),
		errors.Is(err, context.DeadlineExceeded):
		return domain.Unavailable(err, op, "event broker unavailable")
	}
	return domain.WrapError(err, domain.EINTERNAL, op, "failed to publish event")
}

// Connect dials NATS with reconnects enabled and connection state logged.
func Connect(url, name string, logger *slog.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrlRedacted())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info("nats connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	logger.Info("nats connected", "url", nc.ConnectedUrlRedacted())
	return nc, nil
}
