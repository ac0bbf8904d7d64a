package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/spec-kit/enrollment-portal/internal/config"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaForwarder copies every domain event onto a Kafka topic, keyed by subject.
// Writes are asynchronous and each call is bounded by timeout.
type KafkaForwarder struct {
	writer  messageWriter
	timeout time.Duration
	logger  *zap.Logger
}

// NewKafkaForwarder builds a forwarder writing to cfg.Topic.
func NewKafkaForwarder(cfg config.KafkaConfig, logger *zap.Logger) *KafkaForwarder {
	timeout := time.Duration(cfg.WriteTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: timeout,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Warn("kafka delivery failed", zap.Int("messages", len(messages)), zap.Error(err))
			}
		},
	}
	return &KafkaForwarder{writer: writer, timeout: timeout, logger: logger}
}

// Register subscribes the forwarder to every event type.
func (f *KafkaForwarder) Register(d Dispatcher) {
	for _, t := range AllEventTypes {
		d.Subscribe(t, f.Handle)
	}
}

// Handle serializes the event and writes it.
func (f *KafkaForwarder) Handle(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(event.SubjectID),
		Value: value,
		Time:  event.Timestamp,
	}
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	if err := f.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write event to kafka: %w", err)
	}
	f.logger.Debug("event forwarded", zap.String("event_id", event.ID), zap.String("event_type", string(event.Type)))
	return nil
}

// Close flushes and closes the underlying writer.
func (f *KafkaForwarder) Close() error {
	return f.writer.Close()
}
