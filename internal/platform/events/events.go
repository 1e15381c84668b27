// Package events publishes emergency lifecycle events for downstream paging
// and reporting consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Event is one emergency state change. Action is the lifecycle verb
// ("created", "accept", "resolve", ...).
type Event struct {
	ID           uuid.UUID  `json:"id"`
	Action       string     `json:"action"`
	EmergencyID  uuid.UUID  `json:"emergency_id"`
	RoomID       uuid.UUID  `json:"room_id"`
	Status       string     `json:"status"`
	Priority     string     `json:"priority"`
	ActorID      *uuid.UUID `json:"actor_id,omitempty"`
	AssignedUser *uuid.UUID `json:"assigned_user,omitempty"`
	EscalatedTo  string     `json:"escalated_to,omitempty"`
	OccurredAt   time.Time  `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// messageWriter is the subset of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	w       messageWriter
	timeout time.Duration
}

// NewKafkaPublisher writes to topic on brokers. Messages are keyed by
// emergency id so events for one call stay ordered within a partition.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
	return &KafkaPublisher{w: w, timeout: 5 * time.Second}
}

func (p *KafkaPublisher) Publish(ctx context.Context, evt Event) error {
	if evt.ID == uuid.Nil {
		evt.ID = uuid.New()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(evt.EmergencyID.String()),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "action", Value: []byte(evt.Action)},
		},
		Time: evt.OccurredAt,
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s event: %w", evt.Action, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// NopPublisher drops every event. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error { return nil }
