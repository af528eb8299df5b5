// Package delivery pushes persisted notifications to downstream channels.
package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"coverline/internal/attachment/models"
)

// Producer publishes a keyed record to a topic.
type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Kafka publishes notifications keyed by user ID, so a customer's messages
// keep their order.
type Kafka struct {
	producer Producer
	topic    string
}

func NewKafka(producer Producer, topic string) *Kafka {
	return &Kafka{producer: producer, topic: topic}
}

type message struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	ClaimID   string `json:"claim_id,omitempty"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

func (k *Kafka) Deliver(ctx context.Context, n *models.Notification) error {
	msg := message{
		ID:        n.ID.String(),
		UserID:    n.UserID.String(),
		Message:   n.Message,
		CreatedAt: n.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if n.ClaimID != nil {
		msg.ClaimID = n.ClaimID.String()
	}
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	return k.producer.Publish(ctx, k.topic, []byte(msg.UserID), value)
}

// Noop drops every notification. Used when no broker is configured.
type Noop struct{}

func (Noop) Deliver(context.Context, *models.Notification) error { return nil }
