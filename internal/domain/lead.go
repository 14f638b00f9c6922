package domain

import (
	"time"

	"github.com/google/uuid"
)

// LeadStatus enumerates lifecycle stages of an individual lead.
type LeadStatus string

const (
	LeadStatusPending   LeadStatus = "pending"
	LeadStatusCalling   LeadStatus = "calling"
	LeadStatusCompleted LeadStatus = "completed"
	LeadStatusFailed    LeadStatus = "failed"
	LeadStatusSkipped   LeadStatus = "skipped"
)

// Terminal reports whether no further attempts may target the lead.
func (s LeadStatus) Terminal() bool {
	switch s {
	case LeadStatusCompleted, LeadStatusFailed, LeadStatusSkipped:
		return true
	}
	return false
}

// Lead is a single contact row belonging to a campaign. The phone number is
// immutable once imported.
type Lead struct {
	ID            uuid.UUID
	CampaignID    uuid.UUID
	PhoneNumber   string
	Name          string
	Status        LeadStatus
	Attempts      int
	LastAttemptAt *time.Time
	Outcome       string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RunState is a snapshot of a campaign's pacing counters. Counters are
// bucketed by the campaign-local day and clock hour containing the
// evaluation time; a snapshot taken at time T is only valid for decisions
// at T.
type RunState struct {
	CallsToday    int
	CallsThisHour int
	LastCallAt    *time.Time
}

// AttemptRecord is one row of the per-attempt call log.
type AttemptRecord struct {
	ID         uuid.UUID
	LeadID     uuid.UUID
	CampaignID uuid.UUID
	AttemptNum int
	OutcomeTag string
	Error      string
	Duration   time.Duration
	CreatedAt  time.Time
}
