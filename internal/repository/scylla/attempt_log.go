package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"github.com/acme/outbound-dialer/internal/domain"
)

// AttemptLog persists the per-attempt call log in Scylla. Attempts are
// written to two tables: attempts_by_lead for drill-down and
// attempts_by_campaign (day-bucketed) for paged campaign history.
type AttemptLog struct {
	session *gocql.Session
}

// NewAttemptLog creates a new attempt log store.
func NewAttemptLog(session *gocql.Session) *AttemptLog {
	return &AttemptLog{session: session}
}

// AppendAttempt records one call attempt.
func (s *AttemptLog) AppendAttempt(ctx context.Context, attempt domain.AttemptRecord) error {
	durationMs := int64(attempt.Duration / time.Millisecond)

	if err := s.session.Query(`INSERT INTO attempts_by_lead (lead_id, attempt_number, campaign_id, outcome_tag, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		attempt.LeadID.String(), attempt.AttemptNum, attempt.CampaignID.String(),
		attempt.OutcomeTag, attempt.Error, durationMs, attempt.CreatedAt,
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("attempt log: insert attempts_by_lead: %w", err)
	}

	bucket := dayBucket(attempt.CreatedAt)
	if err := s.session.Query(`INSERT INTO attempts_by_campaign (campaign_id, bucket, created_at, attempt_id, lead_id, attempt_number, outcome_tag, error, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		attempt.CampaignID.String(), bucket, attempt.CreatedAt, attempt.ID.String(),
		attempt.LeadID.String(), attempt.AttemptNum, attempt.OutcomeTag, attempt.Error, durationMs,
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("attempt log: insert attempts_by_campaign: %w", err)
	}

	return nil
}

// ListByLead returns a lead's attempts in attempt order.
func (s *AttemptLog) ListByLead(ctx context.Context, leadID uuid.UUID, limit int) ([]domain.AttemptRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	iter := s.session.Query(`SELECT attempt_number, campaign_id, outcome_tag, error, duration_ms, created_at
		FROM attempts_by_lead WHERE lead_id = ? LIMIT ?`, leadID.String(), limit).
		WithContext(ctx).Iter()

	var (
		attemptNum    int
		campaignIDStr string
		outcomeTag    string
		errText       string
		durationMs    int64
		createdAt     time.Time
	)

	attempts := make([]domain.AttemptRecord, 0, limit)
	for iter.Scan(&attemptNum, &campaignIDStr, &outcomeTag, &errText, &durationMs, &createdAt) {
		campaignID, err := uuid.Parse(campaignIDStr)
		if err != nil {
			continue
		}
		attempts = append(attempts, domain.AttemptRecord{
			LeadID:     leadID,
			CampaignID: campaignID,
			AttemptNum: attemptNum,
			OutcomeTag: outcomeTag,
			Error:      errText,
			Duration:   time.Duration(durationMs) * time.Millisecond,
			CreatedAt:  createdAt,
		})
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("attempt log: list by lead: %w", err)
	}
	return attempts, nil
}

// ListByCampaign lists a campaign's attempts with driver-level paging.
func (s *AttemptLog) ListByCampaign(ctx context.Context, campaignID uuid.UUID, limit int, pagingState []byte) ([]domain.AttemptRecord, []byte, error) {
	if limit <= 0 {
		limit = 100
	}

	query := s.session.Query(`SELECT bucket, created_at, attempt_id, lead_id, attempt_number, outcome_tag, error, duration_ms
		FROM attempts_by_campaign WHERE campaign_id = ?`, campaignID.String()).
		WithContext(ctx).PageSize(limit)
	if len(pagingState) > 0 {
		query = query.PageState(pagingState)
	}

	iter := query.Iter()

	var (
		bucket       time.Time
		createdAt    time.Time
		attemptIDStr string
		leadIDStr    string
		attemptNum   int
		outcomeTag   string
		errText      string
		durationMs   int64
	)

	attempts := make([]domain.AttemptRecord, 0, limit)
	for iter.Scan(&bucket, &createdAt, &attemptIDStr, &leadIDStr, &attemptNum, &outcomeTag, &errText, &durationMs) {
		attemptID, err := uuid.Parse(attemptIDStr)
		if err != nil {
			continue
		}
		leadID, err := uuid.Parse(leadIDStr)
		if err != nil {
			continue
		}
		attempts = append(attempts, domain.AttemptRecord{
			ID:         attemptID,
			LeadID:     leadID,
			CampaignID: campaignID,
			AttemptNum: attemptNum,
			OutcomeTag: outcomeTag,
			Error:      errText,
			Duration:   time.Duration(durationMs) * time.Millisecond,
			CreatedAt:  createdAt,
		})
	}

	if err := iter.Close(); err != nil {
		return nil, nil, fmt.Errorf("attempt log: list by campaign: %w", err)
	}

	return attempts, iter.PageState(), nil
}

func dayBucket(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
