package queue

import (
	"time"

	"github.com/google/uuid"
)

// DispatchMessage instructs a dial worker to place one call attempt. The
// attempt number is the one being placed (first attempt = 1).
type DispatchMessage struct {
	LeadID          uuid.UUID `json:"lead_id"`
	CampaignID      uuid.UUID `json:"campaign_id"`
	PhoneNumber     string    `json:"phone_number"`
	Attempt         int       `json:"attempt"`
	MaxAttempts     int       `json:"max_attempts"`
	RetryIntervalMs int64     `json:"retry_interval_ms"`
	EnqueuedAt      time.Time `json:"enqueued_at"`
}

// OutcomeMessage reports the result of a call attempt.
type OutcomeMessage struct {
	LeadID          uuid.UUID  `json:"lead_id"`
	CampaignID      uuid.UUID  `json:"campaign_id"`
	PhoneNumber     string     `json:"phone_number"`
	Attempt         int        `json:"attempt"`
	MaxAttempts     int        `json:"max_attempts"`
	OutcomeTag      string     `json:"outcome_tag"`
	Terminal        bool       `json:"terminal"`
	Success         bool       `json:"success"`
	Retryable       bool       `json:"retryable"`
	RetryIntervalMs int64      `json:"retry_interval_ms"`
	DurationMs      int64      `json:"duration_ms"`
	Error           string     `json:"error,omitempty"`
	OccurredAt      time.Time  `json:"occurred_at"`
	NextAttempt     *time.Time `json:"next_attempt,omitempty"`
}

// RetryMessage is a deferred re-dispatch instruction.
type RetryMessage struct {
	DispatchMessage
	NextAttempt time.Time `json:"next_attempt"`
}
