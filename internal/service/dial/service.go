package dial

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/acme/outbound-dialer/internal/domain"
	"github.com/acme/outbound-dialer/internal/pacing"
	"github.com/acme/outbound-dialer/internal/queue"
	"github.com/acme/outbound-dialer/internal/repository"
	"github.com/acme/outbound-dialer/internal/runstate"
	"github.com/acme/outbound-dialer/internal/service/common"
	apperrors "github.com/acme/outbound-dialer/pkg/errors"
)

// Dispatcher pushes dial instructions onto the queue.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg queue.DispatchMessage) error
}

// PacedError carries the deferral decision alongside the sentinel so HTTP and
// scheduler callers can surface the reason and the retry estimate.
type PacedError struct {
	Decision pacing.Decision
}

func (e *PacedError) Error() string {
	return fmt.Sprintf("dial deferred: %s", e.Decision.Reason)
}

// Unwrap lets errors.Is match the pacing sentinel.
func (e *PacedError) Unwrap() error {
	return apperrors.ErrPaced
}

// Service decides, reserves and dispatches individual dial attempts.
type Service struct {
	campaigns  repository.CampaignRepository
	leads      repository.LeadRepository
	attempts   repository.AttemptLogStore
	run        *runstate.Store
	dispatcher Dispatcher
}

// NewService builds the dial service.
func NewService(
	campaigns repository.CampaignRepository,
	leads repository.LeadRepository,
	attempts repository.AttemptLogStore,
	run *runstate.Store,
	dispatcher Dispatcher,
) *Service {
	return &Service{
		campaigns:  campaigns,
		leads:      leads,
		attempts:   attempts,
		run:        run,
		dispatcher: dispatcher,
	}
}

// Check evaluates the pacing policy for a lead without reserving capacity.
// The decision is advisory; TriggerDial re-validates before dispatch.
func (s *Service) Check(ctx context.Context, leadID uuid.UUID) (pacing.Decision, error) {
	lead, err := s.leads.Get(ctx, leadID)
	if err != nil {
		return pacing.Decision{}, err
	}
	campaign, err := s.campaigns.Get(ctx, lead.CampaignID)
	if err != nil {
		return pacing.Decision{}, err
	}

	now := time.Now().UTC()
	run, err := s.run.Snapshot(ctx, campaign.ID, now, campaign.Location())
	if err != nil {
		return pacing.Decision{}, err
	}
	return pacing.CanAttempt(campaign, lead, run, now), nil
}

// TriggerDial places one attempt for the lead if the pacing policy permits.
// The sequence is decide, reserve, claim, dispatch: the policy runs against a
// snapshot, the reservation re-validates the campaign-wide limits atomically
// in Redis, and the claim flips the lead to calling so no concurrent trigger
// can dispatch the same lead twice. Dispatch failure rolls back both the
// claim and the reservation.
func (s *Service) TriggerDial(ctx context.Context, leadID uuid.UUID) (*domain.Lead, error) {
	lead, err := s.leads.Get(ctx, leadID)
	if err != nil {
		return nil, err
	}
	campaign, err := s.campaigns.Get(ctx, lead.CampaignID)
	if err != nil {
		return nil, fmt.Errorf("dial service: lookup campaign: %w", err)
	}

	now := time.Now().UTC()
	loc := campaign.Location()

	run, err := s.run.Snapshot(ctx, campaign.ID, now, loc)
	if err != nil {
		return nil, fmt.Errorf("dial service: read run state: %w", err)
	}

	decision := pacing.CanAttempt(campaign, lead, run, now)
	if !decision.Allowed {
		return nil, &PacedError{Decision: decision}
	}

	reserved, err := s.run.Reserve(ctx, campaign.ID, runstate.Limits{
		DailyLimit:  campaign.DailyCallLimit,
		HourlyLimit: campaign.CallsPerHour,
		MinInterval: campaign.MinCallInterval,
	}, now, loc)
	if err != nil {
		return nil, fmt.Errorf("dial service: reserve slot: %w", err)
	}
	if !reserved {
		// Another worker consumed the capacity between snapshot and
		// reservation. Re-run the policy for an accurate reason.
		fresh, serr := s.run.Snapshot(ctx, campaign.ID, now, loc)
		if serr != nil {
			return nil, fmt.Errorf("dial service: re-read run state: %w", serr)
		}
		decision := pacing.CanAttempt(campaign, lead, fresh, now)
		if decision.Allowed {
			decision = pacing.Decision{Reason: pacing.ReasonMinIntervalNotElapsed}
		}
		return nil, &PacedError{Decision: decision}
	}

	claimed, err := s.leads.ClaimForDispatch(ctx, lead.ID)
	if err != nil {
		s.rollbackReservation(ctx, campaign.ID, now, loc)
		return nil, fmt.Errorf("dial service: claim lead: %w", err)
	}
	if !claimed {
		s.rollbackReservation(ctx, campaign.ID, now, loc)
		return nil, fmt.Errorf("%w: lead %s already claimed", apperrors.ErrConflict, lead.ID)
	}

	msg := queue.DispatchMessage{
		LeadID:          lead.ID,
		CampaignID:      campaign.ID,
		PhoneNumber:     lead.PhoneNumber,
		Attempt:         lead.Attempts + 1,
		MaxAttempts:     campaign.MaxRetryAttempts,
		RetryIntervalMs: campaign.RetryInterval.Milliseconds(),
		EnqueuedAt:      now,
	}

	if err := s.dispatcher.Dispatch(ctx, msg); err != nil {
		if rerr := s.leads.ReleaseClaim(ctx, lead.ID); rerr != nil {
			err = fmt.Errorf("%w (release claim: %v)", err, rerr)
		}
		s.rollbackReservation(ctx, campaign.ID, now, loc)
		return nil, fmt.Errorf("dial service: dispatch: %w", err)
	}

	lead.Status = domain.LeadStatusCalling
	return lead, nil
}

func (s *Service) rollbackReservation(ctx context.Context, campaignID uuid.UUID, now time.Time, loc *time.Location) {
	_ = s.run.Release(ctx, campaignID, now, loc)
}

// ListAttemptsByLead returns the attempt log for one lead, newest first.
func (s *Service) ListAttemptsByLead(ctx context.Context, leadID uuid.UUID, limit int) ([]domain.AttemptRecord, error) {
	return s.attempts.ListByLead(ctx, leadID, limit)
}

// ListAttemptsByCampaignResult is one page of a campaign's attempt log.
type ListAttemptsByCampaignResult struct {
	Attempts    []domain.AttemptRecord
	PagingState []byte
}

// ListAttemptsByCampaign returns a page of the campaign attempt log.
func (s *Service) ListAttemptsByCampaign(ctx context.Context, campaignID uuid.UUID, limit int, pagingState []byte) (*ListAttemptsByCampaignResult, error) {
	attempts, next, err := s.attempts.ListByCampaign(ctx, campaignID, limit, pagingState)
	if err != nil {
		return nil, err
	}
	return &ListAttemptsByCampaignResult{Attempts: attempts, PagingState: next}, nil
}

// EncodePagingState converts the paging state to base64 for API responses.
func EncodePagingState(state []byte) string {
	if len(state) == 0 {
		return ""
	}
	return common.EncodeBase64(state)
}

// DecodePagingState decodes a base64 token to paging state bytes.
func DecodePagingState(token string) ([]byte, error) {
	if token == "" {
		return nil, nil
	}
	return common.DecodeBase64(token)
}
