package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acme/outbound-dialer/internal/domain"
	"github.com/acme/outbound-dialer/internal/repository"
)

// CampaignStatsRepository implements repository.CampaignStatsRepository.
type CampaignStatsRepository struct {
	db *sqlx.DB
}

// NewCampaignStatsRepository builds the repository.
func NewCampaignStatsRepository(db *sqlx.DB) *CampaignStatsRepository {
	return &CampaignStatsRepository{db: db}
}

// Ensure ensures a counter row exists for the campaign.
func (r *CampaignStatsRepository) Ensure(ctx context.Context, campaignID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO campaign_stats (campaign_id)
		VALUES ($1) ON CONFLICT (campaign_id) DO NOTHING`, campaignID)
	if err != nil {
		return fmt.Errorf("campaign stats: ensure: %w", err)
	}
	return nil
}

// Get retrieves the counters.
func (r *CampaignStatsRepository) Get(ctx context.Context, campaignID uuid.UUID) (*domain.CampaignStats, error) {
	row := r.db.QueryRowxContext(ctx, `SELECT total_attempts, completed_leads, failed_leads, skipped_leads, pending_leads, retries_scheduled
		FROM campaign_stats WHERE campaign_id = $1`, campaignID)

	var record struct {
		TotalAttempts    int64 `db:"total_attempts"`
		CompletedLeads   int64 `db:"completed_leads"`
		FailedLeads      int64 `db:"failed_leads"`
		SkippedLeads     int64 `db:"skipped_leads"`
		PendingLeads     int64 `db:"pending_leads"`
		RetriesScheduled int64 `db:"retries_scheduled"`
	}
	if err := row.StructScan(&record); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("campaign stats: get: %w", err)
	}

	return &domain.CampaignStats{
		TotalAttempts:    record.TotalAttempts,
		CompletedLeads:   record.CompletedLeads,
		FailedLeads:      record.FailedLeads,
		SkippedLeads:     record.SkippedLeads,
		PendingLeads:     record.PendingLeads,
		RetriesScheduled: record.RetriesScheduled,
	}, nil
}

// ApplyDelta applies counter deltas atomically.
func (r *CampaignStatsRepository) ApplyDelta(ctx context.Context, campaignID uuid.UUID, delta repository.StatsDelta) error {
	_, err := r.db.ExecContext(ctx, `UPDATE campaign_stats SET
		total_attempts = total_attempts + $2,
		completed_leads = completed_leads + $3,
		failed_leads = failed_leads + $4,
		skipped_leads = skipped_leads + $5,
		pending_leads = pending_leads + $6,
		retries_scheduled = retries_scheduled + $7,
		updated_at = NOW()
	WHERE campaign_id = $1`,
		campaignID,
		delta.TotalAttemptsDelta,
		delta.CompletedLeadsDelta,
		delta.FailedLeadsDelta,
		delta.SkippedLeadsDelta,
		delta.PendingLeadsDelta,
		delta.RetriesDelta,
	)
	if err != nil {
		return fmt.Errorf("campaign stats: apply delta: %w", err)
	}
	return nil
}
