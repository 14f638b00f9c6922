package outcome

import (
	"testing"

	"github.com/acme/outbound-dialer/internal/domain"
)

func TestStatsDeltaFirstAttemptRetryable(t *testing.T) {
	delta := statsDelta(domain.LeadStatusCalling, domain.LeadStatusPending, 1)
	if delta.TotalAttemptsDelta != 1 {
		t.Errorf("total attempts = %d, want 1", delta.TotalAttemptsDelta)
	}
	if delta.RetriesDelta != 0 {
		t.Errorf("retries = %d, want 0 on first attempt", delta.RetriesDelta)
	}
	if delta.PendingLeadsDelta != 0 || delta.CompletedLeadsDelta != 0 || delta.FailedLeadsDelta != 0 {
		t.Errorf("unexpected lead deltas for a lead returning to pending: %+v", delta)
	}
}

func TestStatsDeltaCompleted(t *testing.T) {
	delta := statsDelta(domain.LeadStatusCalling, domain.LeadStatusCompleted, 2)
	if delta.RetriesDelta != 1 {
		t.Errorf("retries = %d, want 1 for attempt 2", delta.RetriesDelta)
	}
	if delta.CompletedLeadsDelta != 1 {
		t.Errorf("completed = %d, want 1", delta.CompletedLeadsDelta)
	}
	if delta.PendingLeadsDelta != -1 {
		t.Errorf("pending = %d, want -1", delta.PendingLeadsDelta)
	}
}

func TestStatsDeltaFailed(t *testing.T) {
	delta := statsDelta(domain.LeadStatusCalling, domain.LeadStatusFailed, 3)
	if delta.FailedLeadsDelta != 1 {
		t.Errorf("failed = %d, want 1", delta.FailedLeadsDelta)
	}
	if delta.PendingLeadsDelta != -1 {
		t.Errorf("pending = %d, want -1", delta.PendingLeadsDelta)
	}
}
