package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/99minutos/job-tracking/internal/core/domain"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// PositionWriter publishes accepted reports keyed by entity id, so every
// record of one entity lands on the same partition.
type PositionWriter struct {
	writer messageWriter
}

// NewPositionWriter creates a writer for topic.
func NewPositionWriter(brokers []string, topic string) *PositionWriter {
	return &PositionWriter{writer: &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafkago.RequireOne,
		AllowAutoTopicCreation: true,
	}}
}

// Publish satisfies ports.PositionPublisher.
func (w *PositionWriter) Publish(ctx context.Context, rec domain.PositionRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode position: %w", err)
	}
	err = w.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(rec.EntityID),
		Value: payload,
		Time:  rec.ObservedAt,
	})
	if err != nil {
		return fmt.Errorf("publish position: %w", err)
	}
	return nil
}

// Close flushes pending messages and releases the connection.
func (w *PositionWriter) Close() error {
	return w.writer.Close()
}
