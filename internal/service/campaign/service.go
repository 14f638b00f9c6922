package campaign

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/acme/outbound-dialer/internal/config"
	"github.com/acme/outbound-dialer/internal/domain"
	"github.com/acme/outbound-dialer/internal/repository"
	apperrors "github.com/acme/outbound-dialer/pkg/errors"
)

// Service orchestrates campaign lifecycle operations.
type Service struct {
	repo      repository.CampaignRepository
	leadRepo  repository.LeadRepository
	statsRepo repository.CampaignStatsRepository
	defaults  config.PacingConfig
}

// NewService constructs a campaign service.
func NewService(
	repo repository.CampaignRepository,
	leads repository.LeadRepository,
	stats repository.CampaignStatsRepository,
	defaults config.PacingConfig,
) *Service {
	return &Service{
		repo:      repo,
		leadRepo:  leads,
		statsRepo: stats,
		defaults:  defaults,
	}
}

// CreateCampaignInput captures campaign creation parameters.
type CreateCampaignInput struct {
	Name        string
	Description string
	TimeZone    string
	WindowStart string
	WindowEnd   string

	DailyCallLimit int
	// CallsPerHour distinguishes "unset" (nil, use the default) from an
	// explicit zero, which means unlimited.
	CallsPerHour     *int
	MinCallInterval  time.Duration
	MaxRetryAttempts int
	RetryInterval    time.Duration

	StartDate *time.Time
	EndDate   *time.Time

	Leads []LeadInput
}

// LeadInput expresses one contact to import.
type LeadInput struct {
	PhoneNumber string
	Name        string
}

// UpdateCampaignInput captures updatable properties. Pacing changes apply to
// decisions made after the update; in-flight attempts are unaffected.
type UpdateCampaignInput struct {
	ID               uuid.UUID
	Name             *string
	Description     *string
	WindowStart     *string
	WindowEnd       *string
	DailyCallLimit  *int
	CallsPerHour    *int
	MinCallInterval *time.Duration
	MaxRetryAttempts *int
	RetryInterval   *time.Duration
	EndDate         *time.Time
}

// Create provisions a new campaign in draft state.
func (s *Service) Create(ctx context.Context, input CreateCampaignInput) (*domain.Campaign, error) {
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}

	window, err := parseWindow(input.WindowStart, input.WindowEnd)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	campaign := &domain.Campaign{
		ID:               uuid.New(),
		Name:             input.Name,
		Description:      input.Description,
		TimeZone:         input.TimeZone,
		Window:           window,
		DailyCallLimit:   s.resolveDailyLimit(input.DailyCallLimit),
		CallsPerHour:     s.resolveHourlyLimit(input.CallsPerHour),
		MinCallInterval:  s.resolveMinInterval(input.MinCallInterval),
		MaxRetryAttempts: s.resolveMaxAttempts(input.MaxRetryAttempts),
		RetryInterval:    s.resolveRetryInterval(input.RetryInterval),
		Status:           domain.CampaignStatusDraft,
		StartDate:        input.StartDate,
		EndDate:          input.EndDate,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.repo.Create(ctx, campaign); err != nil {
		return nil, fmt.Errorf("campaign service: create campaign: %w", err)
	}

	if err := s.statsRepo.Ensure(ctx, campaign.ID); err != nil {
		return nil, fmt.Errorf("campaign service: ensure stats: %w", err)
	}

	if len(input.Leads) > 0 {
		if err := s.AddLeads(ctx, campaign.ID, input.Leads); err != nil {
			return nil, err
		}
	}

	return campaign, nil
}

// Get retrieves a campaign by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	return s.repo.Get(ctx, id)
}

// List returns campaigns after the given cursor.
func (s *Service) List(ctx context.Context, afterID *uuid.UUID, limit int) ([]*domain.Campaign, error) {
	return s.repo.List(ctx, afterID, limit)
}

// ListByStatus returns campaigns filtered by status.
func (s *Service) ListByStatus(ctx context.Context, status domain.CampaignStatus, limit int) ([]*domain.Campaign, error) {
	return s.repo.ListByStatus(ctx, status, limit)
}

// Update modifies campaign metadata and pacing policy.
func (s *Service) Update(ctx context.Context, input UpdateCampaignInput) (*domain.Campaign, error) {
	campaign, err := s.repo.Get(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		campaign.Name = *input.Name
	}
	if input.Description != nil {
		campaign.Description = *input.Description
	}
	if input.WindowStart != nil || input.WindowEnd != nil {
		start := campaign.Window.Start()
		end := campaign.Window.End()
		if input.WindowStart != nil {
			start = *input.WindowStart
		}
		if input.WindowEnd != nil {
			end = *input.WindowEnd
		}
		window, err := parseWindow(start, end)
		if err != nil {
			return nil, err
		}
		campaign.Window = window
	}
	if input.DailyCallLimit != nil {
		campaign.DailyCallLimit = s.resolveDailyLimit(*input.DailyCallLimit)
	}
	if input.CallsPerHour != nil {
		if *input.CallsPerHour < 0 {
			return nil, fmt.Errorf("%w: calls per hour must not be negative", apperrors.ErrValidation)
		}
		campaign.CallsPerHour = *input.CallsPerHour
	}
	if input.MinCallInterval != nil {
		campaign.MinCallInterval = s.resolveMinInterval(*input.MinCallInterval)
	}
	if input.MaxRetryAttempts != nil {
		campaign.MaxRetryAttempts = s.resolveMaxAttempts(*input.MaxRetryAttempts)
	}
	if input.RetryInterval != nil {
		campaign.RetryInterval = s.resolveRetryInterval(*input.RetryInterval)
	}
	if input.EndDate != nil {
		campaign.EndDate = input.EndDate
	}

	campaign.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, campaign); err != nil {
		return nil, err
	}
	return campaign, nil
}

// Start activates a draft or paused campaign.
func (s *Service) Start(ctx context.Context, id uuid.UUID) error {
	campaign, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	switch campaign.Status {
	case domain.CampaignStatusActive:
		return nil
	case domain.CampaignStatusDraft, domain.CampaignStatusPaused:
	default:
		return fmt.Errorf("%w: cannot start a %s campaign", apperrors.ErrConflict, campaign.Status)
	}

	now := time.Now().UTC()
	campaign.Status = domain.CampaignStatusActive
	if campaign.StartedAt == nil {
		campaign.StartedAt = &now
	}
	campaign.UpdatedAt = now
	return s.repo.Update(ctx, campaign)
}

// Pause suspends dialing for an active campaign. Leads keep their state and
// dialing resumes exactly where it left off.
func (s *Service) Pause(ctx context.Context, id uuid.UUID) error {
	campaign, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if campaign.Status == domain.CampaignStatusPaused {
		return nil
	}
	if campaign.Status != domain.CampaignStatusActive {
		return fmt.Errorf("%w: cannot pause a %s campaign", apperrors.ErrConflict, campaign.Status)
	}

	campaign.Status = domain.CampaignStatusPaused
	campaign.UpdatedAt = time.Now().UTC()
	return s.repo.Update(ctx, campaign)
}

// Resume reactivates a paused campaign.
func (s *Service) Resume(ctx context.Context, id uuid.UUID) error {
	return s.Start(ctx, id)
}

// Cancel permanently stops a campaign and skips all undialed leads.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	campaign, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if campaign.Status == domain.CampaignStatusCancelled {
		return nil
	}
	if campaign.Status == domain.CampaignStatusCompleted {
		return fmt.Errorf("%w: cannot cancel a completed campaign", apperrors.ErrConflict)
	}

	now := time.Now().UTC()
	campaign.Status = domain.CampaignStatusCancelled
	campaign.CompletedAt = &now
	campaign.UpdatedAt = now
	if err := s.repo.Update(ctx, campaign); err != nil {
		return err
	}

	if err := s.leadRepo.SkipRemaining(ctx, id, now); err != nil {
		return fmt.Errorf("campaign service: skip remaining leads: %w", err)
	}
	return nil
}

// Complete marks a campaign as finished. Called when every lead has reached a
// terminal state.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) error {
	campaign, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if campaign.Status == domain.CampaignStatusCompleted {
		return nil
	}

	now := time.Now().UTC()
	campaign.Status = domain.CampaignStatusCompleted
	campaign.CompletedAt = &now
	campaign.UpdatedAt = now
	return s.repo.Update(ctx, campaign)
}

// Stats retrieves aggregated statistics.
func (s *Service) Stats(ctx context.Context, id uuid.UUID) (*domain.CampaignStats, error) {
	return s.statsRepo.Get(ctx, id)
}

// AddLeads appends leads to a campaign. Duplicate phone numbers within the
// campaign are dropped silently.
func (s *Service) AddLeads(ctx context.Context, campaignID uuid.UUID, inputs []LeadInput) error {
	if len(inputs) == 0 {
		return nil
	}

	now := time.Now().UTC()
	leads := make([]*domain.Lead, 0, len(inputs))
	seen := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		phone := strings.TrimSpace(in.PhoneNumber)
		if phone == "" {
			return fmt.Errorf("%w: lead phone number is required", apperrors.ErrValidation)
		}
		if seen[phone] {
			continue
		}
		seen[phone] = true
		leads = append(leads, &domain.Lead{
			ID:          uuid.New(),
			CampaignID:  campaignID,
			PhoneNumber: phone,
			Name:        strings.TrimSpace(in.Name),
			Status:      domain.LeadStatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	if err := s.leadRepo.BulkInsert(ctx, campaignID, leads); err != nil {
		return fmt.Errorf("campaign service: insert leads: %w", err)
	}

	if err := s.statsRepo.ApplyDelta(ctx, campaignID, repository.StatsDelta{PendingLeadsDelta: int64(len(leads))}); err != nil {
		return fmt.Errorf("campaign service: update stats: %w", err)
	}
	return nil
}

// ImportLeadsCSV parses a CSV stream of leads and appends them to the
// campaign. Each row is "phone_number[,name]"; a header row containing
// "phone_number" is skipped.
func (s *Service) ImportLeadsCSV(ctx context.Context, campaignID uuid.UUID, r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var inputs []LeadInput
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("%w: malformed csv: %v", apperrors.ErrValidation, err)
		}
		if len(record) == 0 {
			continue
		}
		phone := strings.TrimSpace(record[0])
		if phone == "" || strings.EqualFold(phone, "phone_number") || strings.EqualFold(phone, "phone") {
			continue
		}
		input := LeadInput{PhoneNumber: phone}
		if len(record) > 1 {
			input.Name = strings.TrimSpace(record[1])
		}
		inputs = append(inputs, input)
	}

	if len(inputs) == 0 {
		return 0, fmt.Errorf("%w: csv contained no leads", apperrors.ErrValidation)
	}

	if err := s.AddLeads(ctx, campaignID, inputs); err != nil {
		return 0, err
	}
	return len(inputs), nil
}

// ListLeads returns leads of a campaign, optionally filtered by status.
func (s *Service) ListLeads(ctx context.Context, campaignID uuid.UUID, status domain.LeadStatus, limit int) ([]*domain.Lead, error) {
	return s.leadRepo.ListByCampaign(ctx, campaignID, status, limit)
}

// LeadCounts returns the per-status lead tallies for a campaign.
func (s *Service) LeadCounts(ctx context.Context, campaignID uuid.UUID) (map[domain.LeadStatus]int64, error) {
	return s.leadRepo.CountByStatus(ctx, campaignID)
}

func (s *Service) resolveDailyLimit(value int) int {
	if value <= 0 {
		return s.defaults.DefaultDailyCallLimit
	}
	return value
}

func (s *Service) resolveHourlyLimit(value *int) int {
	if value == nil {
		return s.defaults.DefaultCallsPerHour
	}
	return *value
}

func (s *Service) resolveMinInterval(value time.Duration) time.Duration {
	if value <= 0 {
		return s.defaults.DefaultMinCallInterval
	}
	return value
}

func (s *Service) resolveMaxAttempts(value int) int {
	if value <= 0 {
		if s.defaults.DefaultMaxRetryAttempts > 0 {
			return s.defaults.DefaultMaxRetryAttempts
		}
		return 1
	}
	return value
}

func (s *Service) resolveRetryInterval(value time.Duration) time.Duration {
	if value <= 0 {
		return s.defaults.DefaultRetryInterval
	}
	return value
}

func parseWindow(start, end string) (domain.CallWindow, error) {
	window, err := domain.ParseCallWindow(start, end)
	if err != nil {
		return domain.CallWindow{}, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}
	return window, nil
}

func validateCreateInput(input CreateCampaignInput) error {
	if input.Name == "" {
		return fmt.Errorf("%w: campaign name is required", apperrors.ErrValidation)
	}
	if input.TimeZone != "" {
		if _, err := time.LoadLocation(input.TimeZone); err != nil {
			return fmt.Errorf("%w: invalid time zone %s: %v", apperrors.ErrValidation, input.TimeZone, err)
		}
	}
	if input.WindowStart == "" || input.WindowEnd == "" {
		return fmt.Errorf("%w: call window start and end are required", apperrors.ErrValidation)
	}
	if input.DailyCallLimit < 0 {
		return fmt.Errorf("%w: daily call limit must not be negative", apperrors.ErrValidation)
	}
	if input.CallsPerHour != nil && *input.CallsPerHour < 0 {
		return fmt.Errorf("%w: calls per hour must not be negative", apperrors.ErrValidation)
	}
	if input.MinCallInterval < 0 {
		return fmt.Errorf("%w: min call interval must not be negative", apperrors.ErrValidation)
	}
	if input.MaxRetryAttempts < 0 {
		return fmt.Errorf("%w: max retry attempts must not be negative", apperrors.ErrValidation)
	}
	if input.StartDate != nil && input.EndDate != nil && !input.EndDate.After(*input.StartDate) {
		return fmt.Errorf("%w: end date must be after start date", apperrors.ErrValidation)
	}
	return nil
}
