package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// DialDispatcher publishes dial instructions to Kafka. Messages are keyed by
// lead id so retries of the same lead land on the same partition.
type DialDispatcher struct {
	writer *kafka.Writer
}

// NewDialDispatcher constructs a dispatcher for the given topic.
func NewDialDispatcher(k *Kafka, topic string) *DialDispatcher {
	return &DialDispatcher{writer: k.NewWriter(topic)}
}

// Dispatch writes the dial message to Kafka.
func (d *DialDispatcher) Dispatch(ctx context.Context, msg DispatchMessage) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("dial dispatcher: marshal message: %w", err)
	}

	record := kafka.Message{
		Key:   msg.LeadID[:],
		Value: value,
		Time:  time.Now().UTC(),
	}

	if err := d.writer.WriteMessages(ctx, record); err != nil {
		return fmt.Errorf("dial dispatcher: write message: %w", err)
	}
	return nil
}

// Close closes the underlying writer.
func (d *DialDispatcher) Close() error {
	return d.writer.Close()
}
