package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/acme/outbound-dialer/internal/domain"
	apperrors "github.com/acme/outbound-dialer/pkg/errors"
)

var (
	// ErrNotFound indicates the entity was not located.
	ErrNotFound = apperrors.ErrNotFound
	// ErrConflict indicates a unique constraint violation.
	ErrConflict = apperrors.ErrConflict
)

// CampaignRepository manages campaign persistence.
type CampaignRepository interface {
	Create(ctx context.Context, campaign *domain.Campaign) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error)
	Update(ctx context.Context, campaign *domain.Campaign) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.CampaignStatus) error
	List(ctx context.Context, afterID *uuid.UUID, limit int) ([]*domain.Campaign, error)
	ListByStatus(ctx context.Context, status domain.CampaignStatus, limit int) ([]*domain.Campaign, error)
}

// LeadRepository stores campaign leads.
type LeadRepository interface {
	BulkInsert(ctx context.Context, campaignID uuid.UUID, leads []*domain.Lead) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Lead, error)
	NextBatchForDialing(ctx context.Context, campaignID uuid.UUID, limit int) ([]*domain.Lead, error)
	// ClaimForDispatch flips a pending lead to calling; it reports false when
	// another worker already claimed the lead.
	ClaimForDispatch(ctx context.Context, leadID uuid.UUID) (bool, error)
	// ReleaseClaim reverts a claimed lead to pending after a failed dispatch.
	ReleaseClaim(ctx context.Context, leadID uuid.UUID) error
	// ApplyAttempt persists the post-attempt lead state produced by the
	// pacing transition.
	ApplyAttempt(ctx context.Context, lead *domain.Lead) error
	ListByCampaign(ctx context.Context, campaignID uuid.UUID, status domain.LeadStatus, limit int) ([]*domain.Lead, error)
	CountByStatus(ctx context.Context, campaignID uuid.UUID) (map[domain.LeadStatus]int64, error)
	SkipRemaining(ctx context.Context, campaignID uuid.UUID, at time.Time) error
}

// CampaignStatsRepository keeps aggregate counters.
type CampaignStatsRepository interface {
	Ensure(ctx context.Context, campaignID uuid.UUID) error
	Get(ctx context.Context, campaignID uuid.UUID) (*domain.CampaignStats, error)
	ApplyDelta(ctx context.Context, campaignID uuid.UUID, delta StatsDelta) error
}

// AttemptLogStore persists the per-attempt call log.
type AttemptLogStore interface {
	AppendAttempt(ctx context.Context, attempt domain.AttemptRecord) error
	ListByLead(ctx context.Context, leadID uuid.UUID, limit int) ([]domain.AttemptRecord, error)
	ListByCampaign(ctx context.Context, campaignID uuid.UUID, limit int, pagingState []byte) ([]domain.AttemptRecord, []byte, error)
}

// StatsDelta captures atomic counter increments.
type StatsDelta struct {
	TotalAttemptsDelta  int64
	CompletedLeadsDelta int64
	FailedLeadsDelta    int64
	SkippedLeadsDelta   int64
	PendingLeadsDelta   int64
	RetriesDelta        int64
}
