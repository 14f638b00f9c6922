package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acme/outbound-dialer/internal/domain"
	"github.com/acme/outbound-dialer/internal/repository"
)

// CampaignRepository implements repository.CampaignRepository using PostgreSQL.
type CampaignRepository struct {
	db *sqlx.DB
}

// NewCampaignRepository constructs a new repository.
func NewCampaignRepository(db *sqlx.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

const campaignColumns = `id, name, description, time_zone, status,
	call_window_start_minute, call_window_end_minute,
	daily_call_limit, calls_per_hour, min_call_interval_ms,
	max_retry_attempts, retry_interval_ms,
	start_date, end_date, created_at, updated_at, started_at, completed_at`

// Create inserts a new campaign.
func (r *CampaignRepository) Create(ctx context.Context, campaign *domain.Campaign) error {
	q := `INSERT INTO campaigns (
		id, name, description, time_zone, status,
		call_window_start_minute, call_window_end_minute,
		daily_call_limit, calls_per_hour, min_call_interval_ms,
		max_retry_attempts, retry_interval_ms,
		start_date, end_date, created_at, updated_at, started_at, completed_at
	) VALUES (
		:id, :name, :description, :time_zone, :status,
		:call_window_start_minute, :call_window_end_minute,
		:daily_call_limit, :calls_per_hour, :min_call_interval_ms,
		:max_retry_attempts, :retry_interval_ms,
		:start_date, :end_date, :created_at, :updated_at, :started_at, :completed_at
	)`

	if _, err := r.db.NamedExecContext(ctx, q, campaignParams(campaign)); err != nil {
		return fmt.Errorf("campaign repo: insert: %w", err)
	}
	return nil
}

// Get fetches a campaign by id.
func (r *CampaignRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	row := r.db.QueryRowxContext(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id)

	var record campaignRecord
	if err := row.StructScan(&record); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("campaign repo: get: %w", err)
	}

	campaign := record.toDomain()
	return &campaign, nil
}

// Update updates campaign metadata and pacing policy.
func (r *CampaignRepository) Update(ctx context.Context, campaign *domain.Campaign) error {
	q := `UPDATE campaigns SET
		name = :name,
		description = :description,
		time_zone = :time_zone,
		status = :status,
		call_window_start_minute = :call_window_start_minute,
		call_window_end_minute = :call_window_end_minute,
		daily_call_limit = :daily_call_limit,
		calls_per_hour = :calls_per_hour,
		min_call_interval_ms = :min_call_interval_ms,
		max_retry_attempts = :max_retry_attempts,
		retry_interval_ms = :retry_interval_ms,
		start_date = :start_date,
		end_date = :end_date,
		updated_at = :updated_at,
		started_at = :started_at,
		completed_at = :completed_at
	 WHERE id = :id`

	res, err := r.db.NamedExecContext(ctx, q, campaignParams(campaign))
	if err != nil {
		return fmt.Errorf("campaign repo: update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("campaign repo: rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpdateStatus updates campaign status.
func (r *CampaignRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.CampaignStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE campaigns SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("campaign repo: update status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("campaign repo: rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// List returns campaigns with keyset pagination.
func (r *CampaignRepository) List(ctx context.Context, afterID *uuid.UUID, limit int) ([]*domain.Campaign, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows *sqlx.Rows
	var err error
	if afterID != nil {
		rows, err = r.db.QueryxContext(ctx, `SELECT `+campaignColumns+`
			FROM campaigns WHERE id > $1 ORDER BY id ASC LIMIT $2`, *afterID, limit)
	} else {
		rows, err = r.db.QueryxContext(ctx, `SELECT `+campaignColumns+`
			FROM campaigns ORDER BY id ASC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("campaign repo: list: %w", err)
	}
	defer rows.Close()

	return scanCampaigns(rows)
}

// ListByStatus returns campaigns filtered by status.
func (r *CampaignRepository) ListByStatus(ctx context.Context, status domain.CampaignStatus, limit int) ([]*domain.Campaign, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryxContext(ctx, `SELECT `+campaignColumns+`
		FROM campaigns WHERE status = $1 ORDER BY updated_at ASC LIMIT $2`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("campaign repo: list by status: %w", err)
	}
	defer rows.Close()

	return scanCampaigns(rows)
}

func scanCampaigns(rows *sqlx.Rows) ([]*domain.Campaign, error) {
	var results []*domain.Campaign
	for rows.Next() {
		var record campaignRecord
		if err := rows.StructScan(&record); err != nil {
			return nil, fmt.Errorf("campaign repo: scan: %w", err)
		}
		campaign := record.toDomain()
		results = append(results, &campaign)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("campaign repo: rows err: %w", err)
	}
	return results, nil
}

func campaignParams(campaign *domain.Campaign) map[string]any {
	return map[string]any{
		"id":                       campaign.ID,
		"name":                     campaign.Name,
		"description":              campaign.Description,
		"time_zone":                campaign.TimeZone,
		"status":                   campaign.Status,
		"call_window_start_minute": campaign.Window.StartMinute,
		"call_window_end_minute":   campaign.Window.EndMinute,
		"daily_call_limit":         campaign.DailyCallLimit,
		"calls_per_hour":           campaign.CallsPerHour,
		"min_call_interval_ms":     campaign.MinCallInterval.Milliseconds(),
		"max_retry_attempts":       campaign.MaxRetryAttempts,
		"retry_interval_ms":        campaign.RetryInterval.Milliseconds(),
		"start_date":               campaign.StartDate,
		"end_date":                 campaign.EndDate,
		"created_at":               campaign.CreatedAt,
		"updated_at":               campaign.UpdatedAt,
		"started_at":               campaign.StartedAt,
		"completed_at":             campaign.CompletedAt,
	}
}

type campaignRecord struct {
	ID                    uuid.UUID      `db:"id"`
	Name                  string         `db:"name"`
	Description           sql.NullString `db:"description"`
	TimeZone              string         `db:"time_zone"`
	Status                string         `db:"status"`
	CallWindowStartMinute int            `db:"call_window_start_minute"`
	CallWindowEndMinute   int            `db:"call_window_end_minute"`
	DailyCallLimit        int            `db:"daily_call_limit"`
	CallsPerHour          int            `db:"calls_per_hour"`
	MinCallIntervalMs     int64          `db:"min_call_interval_ms"`
	MaxRetryAttempts      int            `db:"max_retry_attempts"`
	RetryIntervalMs       int64          `db:"retry_interval_ms"`
	StartDate             sql.NullTime   `db:"start_date"`
	EndDate               sql.NullTime   `db:"end_date"`
	CreatedAt             sql.NullTime   `db:"created_at"`
	UpdatedAt             sql.NullTime   `db:"updated_at"`
	StartedAt             sql.NullTime   `db:"started_at"`
	CompletedAt           sql.NullTime   `db:"completed_at"`
}

func (r campaignRecord) toDomain() domain.Campaign {
	campaign := domain.Campaign{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description.String,
		TimeZone:    r.TimeZone,
		Status:      domain.CampaignStatus(r.Status),
		Window: domain.CallWindow{
			StartMinute: r.CallWindowStartMinute,
			EndMinute:   r.CallWindowEndMinute,
		},
		DailyCallLimit:   r.DailyCallLimit,
		CallsPerHour:     r.CallsPerHour,
		MinCallInterval:  time.Duration(r.MinCallIntervalMs) * time.Millisecond,
		MaxRetryAttempts: r.MaxRetryAttempts,
		RetryInterval:    time.Duration(r.RetryIntervalMs) * time.Millisecond,
		CreatedAt:        r.CreatedAt.Time,
		UpdatedAt:        r.UpdatedAt.Time,
	}

	campaign.StartDate = nullTimePtr(r.StartDate)
	campaign.EndDate = nullTimePtr(r.EndDate)
	campaign.StartedAt = nullTimePtr(r.StartedAt)
	campaign.CompletedAt = nullTimePtr(r.CompletedAt)
	return campaign
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
