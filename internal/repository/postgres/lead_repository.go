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

// LeadRepository persists campaign leads.
type LeadRepository struct {
	db *sqlx.DB
}

// NewLeadRepository constructs the repository.
func NewLeadRepository(db *sqlx.DB) *LeadRepository {
	return &LeadRepository{db: db}
}

const leadColumns = `id, campaign_id, phone_number, name, status, attempts, last_attempt_at, outcome, created_at, updated_at`

// BulkInsert inserts a batch of imported leads. Duplicate phone numbers
// within a campaign are ignored so a re-uploaded CSV is idempotent.
func (r *LeadRepository) BulkInsert(ctx context.Context, campaignID uuid.UUID, leads []*domain.Lead) error {
	if len(leads) == 0 {
		return nil
	}

	query := `INSERT INTO leads (
		id, campaign_id, phone_number, name, status, attempts, last_attempt_at, outcome, created_at, updated_at
	) VALUES (:id, :campaign_id, :phone_number, :name, :status, :attempts, :last_attempt_at, :outcome, :created_at, :updated_at)
	ON CONFLICT (campaign_id, phone_number) DO NOTHING`

	rows := make([]map[string]any, 0, len(leads))
	for _, lead := range leads {
		rows = append(rows, map[string]any{
			"id":              lead.ID,
			"campaign_id":     campaignID,
			"phone_number":    lead.PhoneNumber,
			"name":            lead.Name,
			"status":          lead.Status,
			"attempts":        lead.Attempts,
			"last_attempt_at": lead.LastAttemptAt,
			"outcome":         lead.Outcome,
			"created_at":      lead.CreatedAt,
			"updated_at":      lead.UpdatedAt,
		})
	}

	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, query, rows); err != nil {
			return fmt.Errorf("lead repo: bulk insert: %w", err)
		}
		return nil
	})
}

// Get fetches a lead by id.
func (r *LeadRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Lead, error) {
	row := r.db.QueryRowxContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id)

	var record leadRecord
	if err := row.StructScan(&record); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("lead repo: get: %w", err)
	}
	lead := record.toDomain()
	return &lead, nil
}

// NextBatchForDialing fetches pending leads in import order.
func (r *LeadRepository) NextBatchForDialing(ctx context.Context, campaignID uuid.UUID, limit int) ([]*domain.Lead, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryxContext(ctx, `SELECT `+leadColumns+`
		FROM leads
		WHERE campaign_id = $1 AND status = $2
		ORDER BY created_at ASC
		LIMIT $3`, campaignID, domain.LeadStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("lead repo: select for dialing: %w", err)
	}
	defer rows.Close()

	return scanLeads(rows)
}

// ClaimForDispatch conditionally flips a pending lead to calling. The status
// predicate makes the claim a compare-and-set: a lead claimed by another
// worker yields zero affected rows.
func (r *LeadRepository) ClaimForDispatch(ctx context.Context, leadID uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE leads SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`,
		domain.LeadStatusCalling, leadID, domain.LeadStatusPending)
	if err != nil {
		return false, fmt.Errorf("lead repo: claim: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("lead repo: claim rows affected: %w", err)
	}
	return n == 1, nil
}

// ReleaseClaim reverts a claimed lead to pending.
func (r *LeadRepository) ReleaseClaim(ctx context.Context, leadID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE leads SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`,
		domain.LeadStatusPending, leadID, domain.LeadStatusCalling); err != nil {
		return fmt.Errorf("lead repo: release claim: %w", err)
	}
	return nil
}

// ApplyAttempt persists the post-attempt lead state.
func (r *LeadRepository) ApplyAttempt(ctx context.Context, lead *domain.Lead) error {
	res, err := r.db.ExecContext(ctx, `UPDATE leads SET
		status = $1, attempts = $2, last_attempt_at = $3, outcome = $4, updated_at = $5
		WHERE id = $6`,
		lead.Status, lead.Attempts, lead.LastAttemptAt, lead.Outcome, lead.UpdatedAt, lead.ID)
	if err != nil {
		return fmt.Errorf("lead repo: apply attempt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("lead repo: rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListByCampaign lists leads, optionally filtered by status.
func (r *LeadRepository) ListByCampaign(ctx context.Context, campaignID uuid.UUID, status domain.LeadStatus, limit int) ([]*domain.Lead, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + leadColumns + ` FROM leads WHERE campaign_id = $1`
	args := []any{campaignID}
	if status != "" {
		query += ` AND status = $2 ORDER BY created_at ASC LIMIT $3`
		args = append(args, status, limit)
	} else {
		query += ` ORDER BY created_at ASC LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("lead repo: list: %w", err)
	}
	defer rows.Close()

	return scanLeads(rows)
}

// CountByStatus groups lead counts for completion detection and stats.
func (r *LeadRepository) CountByStatus(ctx context.Context, campaignID uuid.UUID) (map[domain.LeadStatus]int64, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT status, COUNT(*) AS n
		FROM leads WHERE campaign_id = $1 GROUP BY status`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("lead repo: count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.LeadStatus]int64)
	for rows.Next() {
		var row struct {
			Status string `db:"status"`
			N      int64  `db:"n"`
		}
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("lead repo: scan count: %w", err)
		}
		counts[domain.LeadStatus(row.Status)] = row.N
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lead repo: rows err: %w", err)
	}
	return counts, nil
}

// SkipRemaining marks all non-terminal leads skipped, used on cancellation.
func (r *LeadRepository) SkipRemaining(ctx context.Context, campaignID uuid.UUID, at time.Time) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE leads SET status = $1, updated_at = $2
		WHERE campaign_id = $3 AND status IN ($4, $5)`,
		domain.LeadStatusSkipped, at, campaignID,
		domain.LeadStatusPending, domain.LeadStatusCalling); err != nil {
		return fmt.Errorf("lead repo: skip remaining: %w", err)
	}
	return nil
}

func scanLeads(rows *sqlx.Rows) ([]*domain.Lead, error) {
	var results []*domain.Lead
	for rows.Next() {
		var record leadRecord
		if err := rows.StructScan(&record); err != nil {
			return nil, fmt.Errorf("lead repo: scan: %w", err)
		}
		lead := record.toDomain()
		results = append(results, &lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lead repo: rows err: %w", err)
	}
	return results, nil
}

type leadRecord struct {
	ID            uuid.UUID      `db:"id"`
	CampaignID    uuid.UUID      `db:"campaign_id"`
	PhoneNumber   string         `db:"phone_number"`
	Name          sql.NullString `db:"name"`
	Status        string         `db:"status"`
	Attempts      int            `db:"attempts"`
	LastAttemptAt sql.NullTime   `db:"last_attempt_at"`
	Outcome       sql.NullString `db:"outcome"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (r leadRecord) toDomain() domain.Lead {
	lead := domain.Lead{
		ID:          r.ID,
		CampaignID:  r.CampaignID,
		PhoneNumber: r.PhoneNumber,
		Name:        r.Name.String,
		Status:      domain.LeadStatus(r.Status),
		Attempts:    r.Attempts,
		Outcome:     r.Outcome.String,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	lead.LastAttemptAt = nullTimePtr(r.LastAttemptAt)
	return lead
}
