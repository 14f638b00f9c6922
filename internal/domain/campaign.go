package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CampaignStatus enumerates lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusActive    CampaignStatus = "active"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusCancelled CampaignStatus = "cancelled"
)

// CallWindow bounds the local time of day during which calls may be placed.
// Minutes are counted from local midnight; both bounds are inclusive.
type CallWindow struct {
	StartMinute int
	EndMinute   int
}

// ParseCallWindow builds a window from "HH:MM" bounds.
func ParseCallWindow(start, end string) (CallWindow, error) {
	s, err := parseMinuteOfDay(start)
	if err != nil {
		return CallWindow{}, fmt.Errorf("call window start: %w", err)
	}
	e, err := parseMinuteOfDay(end)
	if err != nil {
		return CallWindow{}, fmt.Errorf("call window end: %w", err)
	}
	if e <= s {
		return CallWindow{}, fmt.Errorf("call window end %q must be after start %q", end, start)
	}
	return CallWindow{StartMinute: s, EndMinute: e}, nil
}

func parseMinuteOfDay(value string) (int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q", value)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Contains reports whether the minute of day falls inside the window.
func (w CallWindow) Contains(minuteOfDay int) bool {
	return minuteOfDay >= w.StartMinute && minuteOfDay <= w.EndMinute
}

// Start formats the window start as "HH:MM".
func (w CallWindow) Start() string { return formatMinuteOfDay(w.StartMinute) }

// End formats the window end as "HH:MM".
func (w CallWindow) End() string { return formatMinuteOfDay(w.EndMinute) }

func formatMinuteOfDay(min int) string {
	return fmt.Sprintf("%02d:%02d", min/60, min%60)
}

// Campaign models an outbound calling campaign and its pacing policy.
type Campaign struct {
	ID          uuid.UUID
	Name        string
	Description string
	TimeZone    string
	Window      CallWindow

	DailyCallLimit   int
	CallsPerHour     int // 0 means unlimited
	MinCallInterval  time.Duration
	MaxRetryAttempts int
	RetryInterval    time.Duration

	Status    CampaignStatus
	StartDate *time.Time
	EndDate   *time.Time

	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Location resolves the campaign's IANA time zone, defaulting to UTC.
func (c *Campaign) Location() *time.Location {
	if c.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// CampaignStats aggregates per-campaign dialing counters.
type CampaignStats struct {
	TotalAttempts    int64
	CompletedLeads   int64
	FailedLeads      int64
	SkippedLeads     int64
	PendingLeads     int64
	RetriesScheduled int64
}
