// Package kafka publishes claim lifecycle events to a Kafka topic, keyed by
// claim id so a claim's events stay ordered within a partition.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/tjfontaine/claim-intake/internal/core/domain"
	"github.com/tjfontaine/claim-intake/internal/core/ports"
)

// Writer abstracts kafka.Writer for testing.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config holds producer settings.
type Config struct {
	Brokers []string
	Topic   string
}

// Publisher implements ports.EventPublisher.
type Publisher struct {
	writer Writer
}

var _ ports.EventPublisher = (*Publisher)(nil)

// NewPublisher creates a synchronous producer for cfg.Topic.
func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic required")
	}
	return NewWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}), nil
}

// NewWithWriter wraps an existing writer.
func NewWithWriter(w Writer) *Publisher {
	return &Publisher{writer: w}
}

// Publish writes the event as JSON.
func (p *Publisher) Publish(ctx context.Context, event *domain.ClaimEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal claim event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(event.ClaimID),
		Value: value,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "conversation_id", Value: []byte(event.ConversationID)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
