package outcome

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/outbound-dialer/internal/app"
	"github.com/acme/outbound-dialer/internal/domain"
	"github.com/acme/outbound-dialer/internal/pacing"
	"github.com/acme/outbound-dialer/internal/queue"
	"github.com/acme/outbound-dialer/internal/repository"
)

// Worker consumes call outcomes, applies the attempt to the lead, logs it,
// updates campaign statistics and schedules retries.
type Worker struct {
	container *app.Container
}

// New creates an outcome worker instance.
func New(container *app.Container) *Worker {
	return &Worker{container: container}
}

// Run starts the worker loop.
func (w *Worker) Run(ctx context.Context) error {
	cfg := w.container.Config
	groupID := cfg.Kafka.ConsumerGroupID + "-outcome"
	reader := w.container.Kafka.NewReader(cfg.Kafka.OutcomeTopic, groupID)
	defer reader.Close()

	logger := w.container.Logger.Named("outcomeworker")

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
	var msg queue.OutcomeMessage
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		_ = reader.CommitMessages(ctx, m)
		return fmt.Errorf("unmarshal outcome: %w", err)
	}

	tracer := otel.Tracer("dialer.outcomeworker")
	sctx, span := tracer.Start(ctx, "outcome.apply", trace.WithAttributes(
		attribute.String("lead.id", msg.LeadID.String()),
		attribute.String("campaign.id", msg.CampaignID.String()),
		attribute.Int("attempt", msg.Attempt),
		attribute.String("outcome", msg.OutcomeTag),
	))
	defer span.End()

	if err := w.apply(sctx, msg); err != nil {
		span.RecordError(err)
		return err
	}

	if err := reader.CommitMessages(sctx, m); err != nil {
		span.RecordError(err)
		return fmt.Errorf("commit message: %w", err)
	}
	return nil
}

func (w *Worker) apply(ctx context.Context, msg queue.OutcomeMessage) error {
	repos := w.container.Repositories()
	logger := w.container.Logger.Named("outcomeworker")

	lead, err := repos.Leads.Get(ctx, msg.LeadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logger.Warn("lead vanished", zap.String("lead_id", msg.LeadID.String()))
			return nil
		}
		return fmt.Errorf("load lead: %w", err)
	}

	// Duplicate delivery guard: the attempt was already folded into the
	// lead if its counter caught up.
	if lead.Attempts >= msg.Attempt {
		logger.Debug("outcome already applied",
			zap.String("lead_id", lead.ID.String()),
			zap.Int("attempt", msg.Attempt))
		return nil
	}

	campaign, err := repos.Campaigns.Get(ctx, msg.CampaignID)
	if err != nil {
		return fmt.Errorf("load campaign: %w", err)
	}

	outcome := domain.Outcome{Tag: msg.OutcomeTag, Terminal: msg.Terminal, Success: msg.Success}
	prevStatus := lead.Status

	// The run-state counters were already advanced when the dispatch slot
	// was reserved; only the lead transition from the returned pair is
	// persisted here.
	updated, _ := pacing.RecordOutcome(campaign, *lead, domain.RunState{}, outcome, msg.OccurredAt.UTC())

	if err := repos.Leads.ApplyAttempt(ctx, &updated); err != nil {
		return fmt.Errorf("apply attempt: %w", err)
	}

	record := domain.AttemptRecord{
		ID:         uuid.New(),
		LeadID:     msg.LeadID,
		CampaignID: msg.CampaignID,
		AttemptNum: msg.Attempt,
		OutcomeTag: msg.OutcomeTag,
		Error:      msg.Error,
		Duration:   time.Duration(msg.DurationMs) * time.Millisecond,
		CreatedAt:  msg.OccurredAt.UTC(),
	}
	if err := repos.Attempts.AppendAttempt(ctx, record); err != nil {
		// The lead state is authoritative; a lost log row is tolerable.
		logger.Error("append attempt log", zap.Error(err), zap.String("lead_id", msg.LeadID.String()))
	}

	delta := statsDelta(prevStatus, updated.Status, msg.Attempt)
	if err := repos.Stats.ApplyDelta(ctx, msg.CampaignID, delta); err != nil {
		logger.Error("apply stats delta", zap.Error(err), zap.String("campaign_id", msg.CampaignID.String()))
	}

	if msg.Retryable && updated.Status == domain.LeadStatusPending {
		if err := w.scheduleRetry(ctx, msg); err != nil {
			return fmt.Errorf("schedule retry: %w", err)
		}
	}

	return nil
}

func (w *Worker) scheduleRetry(ctx context.Context, msg queue.OutcomeMessage) error {
	next := time.Now().UTC()
	if msg.NextAttempt != nil {
		next = msg.NextAttempt.UTC()
	}

	retry := queue.RetryMessage{
		DispatchMessage: queue.DispatchMessage{
			LeadID:          msg.LeadID,
			CampaignID:      msg.CampaignID,
			PhoneNumber:     msg.PhoneNumber,
			Attempt:         msg.Attempt + 1,
			MaxAttempts:     msg.MaxAttempts,
			RetryIntervalMs: msg.RetryIntervalMs,
			EnqueuedAt:      time.Now().UTC(),
		},
		NextAttempt: next,
	}

	return w.container.Dispatchers().RetryScheduler.ScheduleRetry(ctx, msg.Attempt, retry)
}

func statsDelta(prev, next domain.LeadStatus, attempt int) repository.StatsDelta {
	delta := repository.StatsDelta{TotalAttemptsDelta: 1}
	if attempt > 1 {
		delta.RetriesDelta = 1
	}
	if prev == next {
		return delta
	}
	switch next {
	case domain.LeadStatusCompleted:
		delta.CompletedLeadsDelta = 1
		delta.PendingLeadsDelta = -1
	case domain.LeadStatusFailed:
		delta.FailedLeadsDelta = 1
		delta.PendingLeadsDelta = -1
	}
	return delta
}
