package dial

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/outbound-dialer/internal/app"
	"github.com/acme/outbound-dialer/internal/domain"
	"github.com/acme/outbound-dialer/internal/queue"
)

// Worker consumes dial dispatch events and drives the telephony bridge.
type Worker struct {
	container *app.Container
}

// New creates a dial worker instance.
func New(container *app.Container) *Worker {
	return &Worker{container: container}
}

// Run starts the worker loop.
func (w *Worker) Run(ctx context.Context) error {
	cfg := w.container.Config
	reader := w.container.Kafka.NewReader(cfg.Kafka.DispatchTopic, cfg.Kafka.ConsumerGroupID)
	defer reader.Close()

	logger := w.container.Logger.Named("dialworker")

	for {
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error("fetch message", zap.Error(err))
			continue
		}

		if err := w.processMessage(ctx, reader, m); err != nil {
			logger.Error("process", zap.Error(err))
		}
	}
}

func (w *Worker) processMessage(ctx context.Context, reader *kafka.Reader, m kafka.Message) error {
	var dispatch queue.DispatchMessage
	if err := json.Unmarshal(m.Value, &dispatch); err != nil {
		_ = reader.CommitMessages(ctx, m)
		return fmt.Errorf("unmarshal dispatch: %w", err)
	}

	tracer := otel.Tracer("dialer.dialworker")
	sctx, span := tracer.Start(ctx, "dial.place", trace.WithAttributes(
		attribute.String("lead.id", dispatch.LeadID.String()),
		attribute.String("campaign.id", dispatch.CampaignID.String()),
		attribute.Int("attempt", dispatch.Attempt),
	))
	defer span.End()

	cfg := w.container.Config
	provider := w.container.Providers().Telephony
	publisher := w.container.Dispatchers().OutcomePublisher

	timeout := cfg.CallBridge.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	callCtx, cancel := context.WithTimeout(sctx, timeout)
	result, callErr := provider.PlaceCall(callCtx, dispatch)
	cancel()

	tag := result.OutcomeTag
	if callErr != nil && tag == "" {
		tag = domain.OutcomeProviderError
	}
	outcome := domain.ClassifyOutcome(tag)

	msg := queue.OutcomeMessage{
		LeadID:          dispatch.LeadID,
		CampaignID:      dispatch.CampaignID,
		PhoneNumber:     dispatch.PhoneNumber,
		Attempt:         dispatch.Attempt,
		MaxAttempts:     dispatch.MaxAttempts,
		OutcomeTag:      outcome.Tag,
		Terminal:        outcome.Terminal,
		Success:         outcome.Success,
		RetryIntervalMs: dispatch.RetryIntervalMs,
		Error:           result.Error,
		OccurredAt:      time.Now().UTC(),
	}

	if result.Duration > 0 {
		msg.DurationMs = result.Duration.Milliseconds()
	}

	if callErr != nil {
		span.RecordError(callErr)
		if msg.Error == "" {
			msg.Error = callErr.Error()
		}
	}

	// Retryable only when the outcome itself allows a follow-up and the
	// attempt just placed was not the last permitted one.
	retryable := !outcome.Terminal && dispatch.Attempt < dispatch.MaxAttempts
	if callErr == nil && !result.Retryable && !outcome.Terminal {
		// Provider vetoed a retry for a non-terminal outcome; honour it.
		retryable = false
	}
	msg.Retryable = retryable
	if retryable {
		next := msg.OccurredAt.Add(time.Duration(dispatch.RetryIntervalMs) * time.Millisecond)
		msg.NextAttempt = &next
	}

	if err := publisher.Publish(sctx, msg); err != nil {
		span.RecordError(err)
		return fmt.Errorf("publish outcome: %w", err)
	}

	if err := reader.CommitMessages(sctx, m); err != nil {
		span.RecordError(err)
		return fmt.Errorf("commit message: %w", err)
	}
	return nil
}
