package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Envelope wraps every event published by the service.
type Envelope struct {
	ID         uuid.UUID       `json:"id"`
	Type       string          `json:"type"`
	Service    string          `json:"service"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

// msgPublisher is the subset of *nats.Conn the publisher needs.
type msgPublisher interface {
	PublishMsg(msg *nats.Msg) error
}

// NATSPublisher publishes envelopes on "<prefix>.<event type>".
type NATSPublisher struct {
	conn    msgPublisher
	prefix  string
	service string
	logger  *zap.Logger
}

func NewNATSPublisher(nc *nats.Conn, prefix, service string, logger *zap.Logger) *NATSPublisher {
	return newPublisher(nc, prefix, service, logger)
}

func newPublisher(conn msgPublisher, prefix, service string, logger *zap.Logger) *NATSPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSPublisher{conn: conn, prefix: prefix, service: service, logger: logger}
}

func (p *NATSPublisher) Subject(eventType string) string {
	if p.prefix == "" {
		return eventType
	}
	return p.prefix + "." + eventType
}

func (p *NATSPublisher) Publish(ctx context.Context, eventType string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	env := Envelope{
		ID:         uuid.New(),
		Type:       eventType,
		Service:    p.service,
		OccurredAt: time.Now().UTC(),
		Payload:    body,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", eventType, err)
	}

	subject := p.Subject(eventType)
	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"event_id":     []string{env.ID.String()},
			"event_type":   []string{eventType},
			"service":      []string{p.service},
			"content_type": []string{"application/json"},
		},
	}
	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	p.logger.Debug("events.published", zap.String("subject", subject), zap.String("event_id", env.ID.String()))
	return nil
}

// Nop discards every event; used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }
