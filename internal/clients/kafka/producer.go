package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"voice-agent-server/internal/observability"

	"github.com/segmentio/kafka-go"
)

// Producer publishes completed-call events to Kafka.
type Producer struct {
	writer *kafka.Writer
	logger *observability.Logger
}

// ProducerConfig contains configuration for the Kafka producer.
type ProducerConfig struct {
	Brokers []string
	Topic   string
}

// NewProducer creates a new Kafka producer.
func NewProducer(config ProducerConfig, logger *observability.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:        kafka.TCP(config.Brokers...),
		Topic:       config.Topic,
		Balancer:    &kafka.LeastBytes{},
		Async:       false,
		Compression: kafka.Snappy,
		BatchSize:   100,
	}

	return &Producer{
		writer: writer,
		logger: logger,
	}
}

// CallEvent is the completed-call record published downstream.
type CallEvent struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	CallID    string         `json:"call_id"`
	CallerID  string         `json:"caller_id"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// PublishCallEvent publishes one call event. Messages are keyed by call ID so
// events of the same call stay ordered within a partition.
func (p *Producer) PublishCallEvent(ctx context.Context, event CallEvent) error {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "event_type", Value: event.Type},
		observability.Field{Key: "event_id", Value: event.ID},
	)

	eventBytes, err := json.Marshal(event)
	if err != nil {
		p.logger.Error(ctx, "failed to marshal call event", err)
		return fmt.Errorf("failed to marshal call event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.CallID),
		Value: eventBytes,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "call_id", Value: []byte(event.CallID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error(ctx, "failed to write message to kafka", err)
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	p.logger.Info(ctx, fmt.Sprintf("published call event %s to kafka", event.Type))
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
