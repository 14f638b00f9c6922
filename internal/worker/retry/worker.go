package retry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/outbound-dialer/internal/app"
	"github.com/acme/outbound-dialer/internal/queue"
	dialsvc "github.com/acme/outbound-dialer/internal/service/dial"
	apperrors "github.com/acme/outbound-dialer/pkg/errors"
)

// Worker drains the per-attempt retry topics, waits until each retry is due
// and hands the lead back to the dial service. Re-dispatch goes through the
// full pacing pipeline, so a retry landing outside the call window or over a
// limit is deferred again rather than forced through.
type Worker struct {
	container *app.Container
}

// New creates a retry worker instance.
func New(container *app.Container) *Worker {
	return &Worker{container: container}
}

// Run consumes every configured retry topic until cancelled.
func (w *Worker) Run(ctx context.Context) error {
	cfg := w.container.Config
	if len(cfg.Kafka.RetryTopics) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, len(cfg.Kafka.RetryTopics))
	var wg sync.WaitGroup

	for idx, topic := range cfg.Kafka.RetryTopics {
		wg.Add(1)
		go func(topic string, attemptIndex int) {
			defer wg.Done()
			if err := w.consumeTopic(ctx, topic, attemptIndex); err != nil && ctx.Err() == nil {
				errCh <- err
			}
		}(topic, idx+1)
	}

	select {
	case <-ctx.Done():
		wg.Wait()
		return ctx.Err()
	case err := <-errCh:
		cancel()
		wg.Wait()
		return err
	}
}

func (w *Worker) consumeTopic(ctx context.Context, topic string, attemptIndex int) error {
	cfg := w.container.Config
	groupID := cfg.Kafka.RetryConsumerGroupID
	if groupID == "" {
		groupID = fmt.Sprintf("%s-retry-%d", cfg.Kafka.ConsumerGroupID, attemptIndex)
	} else {
		groupID = fmt.Sprintf("%s-%d", groupID, attemptIndex)
	}

	reader := w.container.Kafka.NewReader(topic, groupID)
	defer reader.Close()

	logger := w.container.Logger.Named("retryworker")

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error("fetch", zap.Error(err))
			continue
		}

		var retryMsg queue.RetryMessage
		if err := json.Unmarshal(msg.Value, &retryMsg); err != nil {
			logger.Error("unmarshal", zap.Error(err))
			_ = reader.CommitMessages(ctx, msg)
			continue
		}

		tracer := otel.Tracer("dialer.retryworker")
		sctx, span := tracer.Start(ctx, "retry.redispatch", trace.WithAttributes(
			attribute.String("lead.id", retryMsg.LeadID.String()),
			attribute.String("campaign.id", retryMsg.CampaignID.String()),
			attribute.Int("attempt", retryMsg.DispatchMessage.Attempt),
		))

		if err := w.sleepUntil(sctx, retryMsg.NextAttempt); err != nil {
			span.RecordError(err)
			span.End()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		if err := w.redispatch(sctx, retryMsg); err != nil {
			span.RecordError(err)
			logger.Error("redispatch", zap.Error(err), zap.String("lead_id", retryMsg.LeadID.String()))
			span.End()
			continue
		}

		if err := reader.CommitMessages(sctx, msg); err != nil {
			span.RecordError(err)
			logger.Error("commit", zap.Error(err))
		}
		span.End()
	}
}

// redispatch pushes the lead back through the dial service, waiting out any
// further pacing deferrals that come with a retry estimate. Deferrals
// without one (the lead went terminal, the campaign was stopped) are final
// for this message; the scheduler owns any later re-evaluation.
func (w *Worker) redispatch(ctx context.Context, msg queue.RetryMessage) error {
	dial := w.container.Services().Dial
	logger := w.container.Logger.Named("retryworker")

	for {
		_, err := dial.TriggerDial(ctx, msg.LeadID)
		if err == nil {
			return nil
		}

		var paced *dialsvc.PacedError
		if errors.As(err, &paced) {
			if paced.Decision.RetryAfter == nil {
				logger.Debug("retry dropped",
					zap.String("lead_id", msg.LeadID.String()),
					zap.String("reason", string(paced.Decision.Reason)))
				return nil
			}
			logger.Debug("retry deferred",
				zap.String("lead_id", msg.LeadID.String()),
				zap.String("reason", string(paced.Decision.Reason)),
				zap.Time("retry_after", *paced.Decision.RetryAfter))
			if err := w.sleepUntil(ctx, *paced.Decision.RetryAfter); err != nil {
				return err
			}
			continue
		}
		if errors.Is(err, apperrors.ErrConflict) {
			// Someone else is already dialing the lead.
			return nil
		}
		return err
	}
}

func (w *Worker) sleepUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
