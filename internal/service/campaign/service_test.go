package campaign

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/acme/outbound-dialer/internal/config"
	"github.com/acme/outbound-dialer/internal/domain"
	"github.com/acme/outbound-dialer/internal/repository"
)

func TestValidateCreateInputFailures(t *testing.T) {
	negative := -1
	cases := []CreateCampaignInput{
		{Name: "", TimeZone: "UTC", WindowStart: "09:00", WindowEnd: "17:00"},
		{Name: "test", TimeZone: "invalid", WindowStart: "09:00", WindowEnd: "17:00"},
		{Name: "test", WindowStart: "", WindowEnd: "17:00"},
		{Name: "test", WindowStart: "09:00", WindowEnd: ""},
		{Name: "test", WindowStart: "09:00", WindowEnd: "17:00", DailyCallLimit: -5},
		{Name: "test", WindowStart: "09:00", WindowEnd: "17:00", CallsPerHour: &negative},
		{Name: "test", WindowStart: "09:00", WindowEnd: "17:00", MinCallInterval: -time.Second},
		{Name: "test", WindowStart: "09:00", WindowEnd: "17:00", MaxRetryAttempts: -1},
	}

	for _, tc := range cases {
		if err := validateCreateInput(tc); err == nil {
			t.Errorf("expected validation error for input %+v", tc)
		}
	}
}

func TestValidateCreateInputDateOrdering(t *testing.T) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)
	input := CreateCampaignInput{
		Name:        "test",
		WindowStart: "09:00",
		WindowEnd:   "17:00",
		StartDate:   &start,
		EndDate:     &end,
	}
	if err := validateCreateInput(input); err == nil {
		t.Fatal("expected error when end date precedes start date")
	}
}

func TestValidateCreateInputSuccess(t *testing.T) {
	input := CreateCampaignInput{
		Name:        "test",
		TimeZone:    "America/New_York",
		WindowStart: "09:00",
		WindowEnd:   "17:00",
	}
	if err := validateCreateInput(input); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestResolveDefaults(t *testing.T) {
	svc := NewService(nil, nil, nil, config.PacingConfig{
		DefaultDailyCallLimit:   100,
		DefaultCallsPerHour:     20,
		DefaultMinCallInterval:  30 * time.Second,
		DefaultMaxRetryAttempts: 3,
		DefaultRetryInterval:    10 * time.Minute,
	})

	if got := svc.resolveDailyLimit(0); got != 100 {
		t.Errorf("daily limit default = %d, want 100", got)
	}
	if got := svc.resolveDailyLimit(50); got != 50 {
		t.Errorf("explicit daily limit = %d, want 50", got)
	}
	if got := svc.resolveHourlyLimit(nil); got != 20 {
		t.Errorf("hourly limit default = %d, want 20", got)
	}
	zero := 0
	if got := svc.resolveHourlyLimit(&zero); got != 0 {
		t.Errorf("explicit zero hourly limit = %d, want 0 (unlimited)", got)
	}
	if got := svc.resolveMinInterval(0); got != 30*time.Second {
		t.Errorf("min interval default = %v, want 30s", got)
	}
	if got := svc.resolveMaxAttempts(0); got != 3 {
		t.Errorf("max attempts default = %d, want 3", got)
	}
	if got := svc.resolveRetryInterval(0); got != 10*time.Minute {
		t.Errorf("retry interval default = %v, want 10m", got)
	}
}

func TestResolveMaxAttemptsFloor(t *testing.T) {
	svc := NewService(nil, nil, nil, config.PacingConfig{})
	if got := svc.resolveMaxAttempts(0); got != 1 {
		t.Errorf("max attempts with no default = %d, want 1", got)
	}
}

func TestImportLeadsCSV(t *testing.T) {
	leads := &fakeLeadRepo{}
	stats := &fakeStatsRepo{}
	svc := NewService(nil, leads, stats, config.PacingConfig{})

	csv := strings.Join([]string{
		"phone_number,name",
		"+15551230001,Ada",
		"+15551230002,Grace",
		"+15551230002,Grace Again",
		"",
		"+15551230003,",
	}, "\n")

	n, err := svc.ImportLeadsCSV(context.Background(), uuid.New(), strings.NewReader(csv))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 4 {
		t.Errorf("imported = %d, want 4 rows parsed", n)
	}
	// Duplicate phone number collapses during insert preparation.
	if len(leads.inserted) != 3 {
		t.Fatalf("inserted = %d leads, want 3", len(leads.inserted))
	}
	for _, l := range leads.inserted {
		if l.Status != domain.LeadStatusPending {
			t.Errorf("lead %s status = %s, want pending", l.PhoneNumber, l.Status)
		}
	}
	if stats.pendingDelta != 3 {
		t.Errorf("pending delta = %d, want 3", stats.pendingDelta)
	}
}

func TestImportLeadsCSVEmpty(t *testing.T) {
	svc := NewService(nil, &fakeLeadRepo{}, &fakeStatsRepo{}, config.PacingConfig{})
	if _, err := svc.ImportLeadsCSV(context.Background(), uuid.New(), strings.NewReader("phone_number\n")); err == nil {
		t.Fatal("expected error for csv with no leads")
	}
}

type fakeLeadRepo struct {
	inserted []*domain.Lead
}

func (f *fakeLeadRepo) BulkInsert(_ context.Context, _ uuid.UUID, leads []*domain.Lead) error {
	f.inserted = append(f.inserted, leads...)
	return nil
}

func (f *fakeLeadRepo) Get(context.Context, uuid.UUID) (*domain.Lead, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeLeadRepo) NextBatchForDialing(context.Context, uuid.UUID, int) ([]*domain.Lead, error) {
	return nil, nil
}

func (f *fakeLeadRepo) ClaimForDispatch(context.Context, uuid.UUID) (bool, error) { return false, nil }
func (f *fakeLeadRepo) ReleaseClaim(context.Context, uuid.UUID) error             { return nil }
func (f *fakeLeadRepo) ApplyAttempt(context.Context, *domain.Lead) error          { return nil }

func (f *fakeLeadRepo) ListByCampaign(context.Context, uuid.UUID, domain.LeadStatus, int) ([]*domain.Lead, error) {
	return nil, nil
}

func (f *fakeLeadRepo) CountByStatus(context.Context, uuid.UUID) (map[domain.LeadStatus]int64, error) {
	return nil, nil
}

func (f *fakeLeadRepo) SkipRemaining(context.Context, uuid.UUID, time.Time) error { return nil }

type fakeStatsRepo struct {
	pendingDelta int64
}

func (f *fakeStatsRepo) Ensure(context.Context, uuid.UUID) error { return nil }

func (f *fakeStatsRepo) Get(context.Context, uuid.UUID) (*domain.CampaignStats, error) {
	return &domain.CampaignStats{}, nil
}

func (f *fakeStatsRepo) ApplyDelta(_ context.Context, _ uuid.UUID, delta repository.StatsDelta) error {
	f.pendingDelta += delta.PendingLeadsDelta
	return nil
}
