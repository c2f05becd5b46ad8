package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// DefaultTopic receives events when no topic is configured.
const DefaultTopic = "lettrage.events"

// Kafka publishes events to a Kafka topic, keyed by subject so that the
// events of one batch or account prefix stay ordered.
type Kafka struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// KafkaOption configures a Kafka publisher.
type KafkaOption func(*Kafka)

// WithKafkaLogger sets the structured logger.
func WithKafkaLogger(logger *slog.Logger) KafkaOption {
	return func(k *Kafka) {
		k.logger = logger
	}
}

// WithBatchTimeout bounds how long messages wait for a batch to fill.
func WithBatchTimeout(d time.Duration) KafkaOption {
	return func(k *Kafka) {
		k.writer.BatchTimeout = d
	}
}

// NewKafka creates a publisher writing to topic on brokers.
func NewKafka(brokers []string, topic string, opts ...KafkaOption) *Kafka {
	if topic == "" {
		topic = DefaultTopic
	}
	k := &Kafka{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		},
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Publish writes events in one batch.
func (k *Kafka) Publish(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		msg, err := toMessage(e)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to publish %d event(s) to %s: %w", len(msgs), k.writer.Topic, err)
	}
	k.logger.Debug("published events", "topic", k.writer.Topic, "count", len(msgs))
	return nil
}

// Close flushes pending messages.
func (k *Kafka) Close() error {
	return k.writer.Close()
}

func toMessage(e Event) (kafka.Message, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal event %s: %w", e.Type, err)
	}
	return kafka.Message{
		Key:   []byte(e.Subject),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event-id", Value: []byte(e.ID)},
			{Key: "event-type", Value: []byte(e.Type)},
			{Key: "event-time", Value: []byte(e.Time.Format(time.RFC3339))},
			{Key: "content-type", Value: []byte("application/json")},
		},
		Time: e.Time,
	}, nil
}
