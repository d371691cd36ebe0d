// Package events publishes notification facts for the external delivery
// system to consume. The store row is the source of truth; these events are
// best-effort fan-out and failures never roll anything back.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/sumire/stressless/internal/domain"
)

const (
	TypeNotificationCreated = "notification.created"
	TypeEscalationCreated   = "escalation.created"
)

// Event is the wire envelope for outbound facts.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// Publisher emits durable-record events to the outside world.
type Publisher interface {
	NotificationCreated(ctx context.Context, n domain.Notification) error
	EscalationCreated(ctx context.Context, e domain.LeaderEscalation) error
	Close() error
}

// NopPublisher discards all events. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) NotificationCreated(context.Context, domain.Notification) error { return nil }
func (NopPublisher) EscalationCreated(context.Context, domain.LeaderEscalation) error {
	return nil
}
func (NopPublisher) Close() error { return nil }

// KafkaPublisher writes events to a single topic, keyed by the receiving
// user so per-user ordering is preserved.
type KafkaPublisher struct {
	writer *kafka.Writer
	log    *slog.Logger
}

// NewKafkaPublisher creates a publisher writing to topic on the given brokers.
func NewKafkaPublisher(brokers []string, topic string, log *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
		},
		log: log,
	}
}

// NotificationCreated publishes a collaborator notification fact.
func (p *KafkaPublisher) NotificationCreated(ctx context.Context, n domain.Notification) error {
	return p.publish(ctx, TypeNotificationCreated, fmt.Sprintf("collaborator-%d", n.CollaboratorID), n)
}

// EscalationCreated publishes a leader escalation fact.
func (p *KafkaPublisher) EscalationCreated(ctx context.Context, e domain.LeaderEscalation) error {
	return p.publish(ctx, TypeEscalationCreated, fmt.Sprintf("leader-%d", e.LeaderID), e)
}

func (p *KafkaPublisher) publish(ctx context.Context, eventType, key string, payload any) error {
	event := Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: data,
	}); err != nil {
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}

	p.log.Debug("event published", "type", eventType, "key", key)
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
