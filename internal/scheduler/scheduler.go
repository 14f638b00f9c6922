package scheduler

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/outbound-dialer/internal/app"
	"github.com/acme/outbound-dialer/internal/domain"
	dialsvc "github.com/acme/outbound-dialer/internal/service/dial"
	apperrors "github.com/acme/outbound-dialer/pkg/errors"
)

// Scheduler periodically scans active campaigns and dispatches every lead
// the pacing policy permits right now.
type Scheduler struct {
	container *app.Container
}

// New constructs a scheduler.
func New(container *app.Container) *Scheduler {
	return &Scheduler{container: container}
}

// Run executes the scheduling loop until cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	cfg := s.container.Config
	interval := cfg.Scheduler.TickInterval
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.tick(ctx); err != nil && ctx.Err() == nil {
			s.container.Logger.Error("scheduler tick failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) error {
	services := s.container.Services()

	tracer := otel.Tracer("dialer.scheduler")
	sctx, span := tracer.Start(ctx, "scheduler.tick")
	defer span.End()

	campaigns, err := services.Campaign.ListByStatus(sctx, domain.CampaignStatusActive, s.campaignFetchLimit())
	if err != nil {
		span.RecordError(err)
		return err
	}
	span.SetAttributes(attribute.Int("campaign.count", len(campaigns)))

	for _, campaign := range campaigns {
		s.processCampaign(sctx, tracer, campaign)
	}

	return nil
}

func (s *Scheduler) processCampaign(ctx context.Context, tracer trace.Tracer, campaign *domain.Campaign) {
	services := s.container.Services()
	repos := s.container.Repositories()
	logger := s.container.Logger.Named("scheduler")

	cctx, span := tracer.Start(ctx, "scheduler.campaign", trace.WithAttributes(
		attribute.String("campaign.id", campaign.ID.String()),
	))
	defer span.End()

	leads, err := repos.Leads.NextBatchForDialing(cctx, campaign.ID, s.container.Config.Scheduler.MaxBatchSize)
	if err != nil {
		span.RecordError(err)
		logger.Error("fetch leads", zap.Error(err), zap.String("campaign_id", campaign.ID.String()))
		return
	}
	span.SetAttributes(attribute.Int("leads.fetched", len(leads)))

	if len(leads) == 0 {
		s.maybeComplete(cctx, campaign)
		return
	}

	dispatched := 0
	for _, lead := range leads {
		_, err := services.Dial.TriggerDial(cctx, lead.ID)
		if err == nil {
			dispatched++
			continue
		}

		var paced *dialsvc.PacedError
		if errors.As(err, &paced) {
			if paced.Decision.Reason.CampaignWide() {
				// Every remaining lead would hit the same limit; move on
				// to the next campaign and let a later tick retry.
				span.SetAttributes(attribute.String("deferred.reason", string(paced.Decision.Reason)))
				logger.Debug("campaign deferred",
					zap.String("campaign_id", campaign.ID.String()),
					zap.String("reason", string(paced.Decision.Reason)))
				break
			}
			continue
		}
		if errors.Is(err, apperrors.ErrConflict) {
			// Lost the claim race to another scheduler instance.
			continue
		}

		span.RecordError(err)
		logger.Error("trigger dial failed",
			zap.Error(err),
			zap.String("campaign_id", campaign.ID.String()),
			zap.String("lead_id", lead.ID.String()))
	}

	if dispatched > 0 {
		logger.Info("dispatched leads",
			zap.String("campaign_id", campaign.ID.String()),
			zap.Int("count", dispatched))
	}
}

// maybeComplete finishes the campaign once no dialable leads remain.
func (s *Scheduler) maybeComplete(ctx context.Context, campaign *domain.Campaign) {
	repos := s.container.Repositories()
	logger := s.container.Logger.Named("scheduler")

	counts, err := repos.Leads.CountByStatus(ctx, campaign.ID)
	if err != nil {
		logger.Error("count leads", zap.Error(err), zap.String("campaign_id", campaign.ID.String()))
		return
	}

	var total int64
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		// No leads imported yet; nothing to complete.
		return
	}
	if counts[domain.LeadStatusPending] > 0 || counts[domain.LeadStatusCalling] > 0 {
		return
	}

	if err := s.container.Services().Campaign.Complete(ctx, campaign.ID); err != nil {
		logger.Error("complete campaign", zap.Error(err), zap.String("campaign_id", campaign.ID.String()))
		return
	}
	logger.Info("campaign completed", zap.String("campaign_id", campaign.ID.String()))
}

func (s *Scheduler) campaignFetchLimit() int {
	limit := s.container.Config.Scheduler.CampaignLimit
	if limit <= 0 {
		limit = 100
	}
	return limit
}
