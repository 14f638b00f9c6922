package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// RetryScheduler publishes retry instructions to dedicated per-attempt
// topics, one topic per completed attempt index.
type RetryScheduler struct {
	writers []*kafka.Writer
}

// NewRetryScheduler constructs a scheduler from configured retry topics.
func NewRetryScheduler(k *Kafka, topics []string) *RetryScheduler {
	writers := make([]*kafka.Writer, 0, len(topics))
	for _, topic := range topics {
		writers = append(writers, k.NewWriter(topic))
	}
	return &RetryScheduler{writers: writers}
}

// ScheduleRetry publishes the message to the retry topic for the attempt
// that just completed (1-based). Attempts beyond the configured topics land
// on the last topic.
func (r *RetryScheduler) ScheduleRetry(ctx context.Context, attempt int, msg RetryMessage) error {
	if len(r.writers) == 0 {
		return fmt.Errorf("retry scheduler: no retry topics configured")
	}
	if attempt <= 0 {
		return fmt.Errorf("retry scheduler: attempt %d out of range", attempt)
	}
	if attempt > len(r.writers) {
		attempt = len(r.writers)
	}

	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("retry scheduler: marshal message: %w", err)
	}

	record := kafka.Message{
		Key:   msg.LeadID[:],
		Value: value,
		Time:  time.Now().UTC(),
	}

	if err := r.writers[attempt-1].WriteMessages(ctx, record); err != nil {
		return fmt.Errorf("retry scheduler: write: %w", err)
	}
	return nil
}

// Close closes all writers.
func (r *RetryScheduler) Close() error {
	var err error
	for _, w := range r.writers {
		if w == nil {
			continue
		}
		if cerr := w.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
