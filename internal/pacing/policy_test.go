package pacing

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/acme/outbound-dialer/internal/domain"
)

func testCampaign() *domain.Campaign {
	return &domain.Campaign{
		ID:               uuid.New(),
		Name:             "test",
		TimeZone:         "UTC",
		Window:           domain.CallWindow{StartMinute: 9 * 60, EndMinute: 17 * 60},
		DailyCallLimit:   100,
		CallsPerHour:     20,
		MinCallInterval:  30 * time.Second,
		MaxRetryAttempts: 3,
		RetryInterval:    10 * time.Minute,
		Status:           domain.CampaignStatusActive,
	}
}

func testLead(campaignID uuid.UUID) *domain.Lead {
	return &domain.Lead{
		ID:          uuid.New(),
		CampaignID:  campaignID,
		PhoneNumber: "+15551230001",
		Status:      domain.LeadStatusPending,
	}
}

func at(hour, minute int) time.Time {
	return time.Date(2024, 6, 3, hour, minute, 0, 0, time.UTC)
}

func TestCanAttemptAllowed(t *testing.T) {
	campaign := testCampaign()
	lead := testLead(campaign.ID)

	decision := CanAttempt(campaign, lead, domain.RunState{}, at(10, 0))
	if !decision.Allowed {
		t.Fatalf("expected allowed, got deferred(%s)", decision.Reason)
	}
}

func TestCanAttemptInactiveCampaign(t *testing.T) {
	for _, status := range []domain.CampaignStatus{
		domain.CampaignStatusDraft,
		domain.CampaignStatusPaused,
		domain.CampaignStatusCompleted,
		domain.CampaignStatusCancelled,
	} {
		campaign := testCampaign()
		campaign.Status = status
		decision := CanAttempt(campaign, testLead(campaign.ID), domain.RunState{}, at(10, 0))
		if decision.Allowed || decision.Reason != ReasonCampaignInactive {
			t.Errorf("status %s: expected CAMPAIGN_INACTIVE, got %+v", status, decision)
		}
		if decision.RetryAfter != nil {
			t.Errorf("status %s: expected nil retry time", status)
		}
	}
}

func TestCanAttemptBeforeStartDate(t *testing.T) {
	campaign := testCampaign()
	start := at(12, 0)
	campaign.StartDate = &start

	decision := CanAttempt(campaign, testLead(campaign.ID), domain.RunState{}, at(10, 0))
	if decision.Allowed || decision.Reason != ReasonCampaignInactive {
		t.Fatalf("expected CAMPAIGN_INACTIVE before start date, got %+v", decision)
	}
	if decision.RetryAfter == nil || !decision.RetryAfter.Equal(start) {
		t.Fatalf("expected retry at start date %v, got %v", start, decision.RetryAfter)
	}
}

func TestCanAttemptAfterEndDate(t *testing.T) {
	campaign := testCampaign()
	end := at(9, 30)
	campaign.EndDate = &end

	decision := CanAttempt(campaign, testLead(campaign.ID), domain.RunState{}, at(10, 0))
	if decision.Allowed || decision.Reason != ReasonCampaignInactive {
		t.Fatalf("expected CAMPAIGN_INACTIVE after end date, got %+v", decision)
	}
	if decision.RetryAfter != nil {
		t.Fatalf("expected nil retry time after end date")
	}
}

func TestCanAttemptTerminalLead(t *testing.T) {
	campaign := testCampaign()
	for _, status := range []domain.LeadStatus{
		domain.LeadStatusCompleted,
		domain.LeadStatusFailed,
		domain.LeadStatusSkipped,
	} {
		lead := testLead(campaign.ID)
		lead.Status = status
		decision := CanAttempt(campaign, lead, domain.RunState{}, at(10, 0))
		if decision.Allowed || decision.Reason != ReasonLeadTerminal {
			t.Errorf("status %s: expected LEAD_TERMINAL, got %+v", status, decision)
		}
	}
}

func TestCanAttemptRetryExhaustedDominates(t *testing.T) {
	// Exhaustion must win regardless of every other condition being
	// favourable, and regardless of the lead still reading pending.
	campaign := testCampaign()
	lead := testLead(campaign.ID)
	lead.Attempts = campaign.MaxRetryAttempts

	decision := CanAttempt(campaign, lead, domain.RunState{}, at(10, 0))
	if decision.Allowed || decision.Reason != ReasonRetryExhausted {
		t.Fatalf("expected RETRY_EXHAUSTED, got %+v", decision)
	}
	if decision.RetryAfter != nil {
		t.Fatalf("expected nil retry time for exhausted lead")
	}

	lead.Attempts = campaign.MaxRetryAttempts + 2
	decision = CanAttempt(campaign, lead, domain.RunState{}, at(10, 0))
	if decision.Reason != ReasonRetryExhausted {
		t.Fatalf("expected RETRY_EXHAUSTED above the limit, got %+v", decision)
	}
}

func TestCanAttemptOutsideWindowBeforeOpen(t *testing.T) {
	campaign := testCampaign()
	now := at(8, 0)

	decision := CanAttempt(campaign, testLead(campaign.ID), domain.RunState{}, now)
	if decision.Allowed || decision.Reason != ReasonOutsideCallWindow {
		t.Fatalf("expected OUTSIDE_CALL_WINDOW, got %+v", decision)
	}
	want := at(9, 0)
	if decision.RetryAfter == nil || !decision.RetryAfter.Equal(want) {
		t.Fatalf("expected window open at %v, got %v", want, decision.RetryAfter)
	}
}

func TestCanAttemptOutsideWindowAfterClose(t *testing.T) {
	campaign := testCampaign()
	now := at(17, 1)

	decision := CanAttempt(campaign, testLead(campaign.ID), domain.RunState{}, now)
	if decision.Reason != ReasonOutsideCallWindow {
		t.Fatalf("expected OUTSIDE_CALL_WINDOW, got %+v", decision)
	}
	want := time.Date(2024, 6, 4, 9, 0, 0, 0, time.UTC)
	if decision.RetryAfter == nil || !decision.RetryAfter.Equal(want) {
		t.Fatalf("expected next-day open %v, got %v", want, decision.RetryAfter)
	}
}

func TestCanAttemptWindowBoundsInclusive(t *testing.T) {
	campaign := testCampaign()
	lead := testLead(campaign.ID)

	if d := CanAttempt(campaign, lead, domain.RunState{}, at(9, 0)); !d.Allowed {
		t.Fatalf("expected window start to be callable, got %+v", d)
	}
	if d := CanAttempt(campaign, lead, domain.RunState{}, at(17, 0)); !d.Allowed {
		t.Fatalf("expected window end to be callable, got %+v", d)
	}
}

func TestCanAttemptDailyLimit(t *testing.T) {
	campaign := testCampaign()
	run := domain.RunState{CallsToday: campaign.DailyCallLimit}

	decision := CanAttempt(campaign, testLead(campaign.ID), run, at(10, 0))
	if decision.Reason != ReasonDailyLimitReached {
		t.Fatalf("expected DAILY_LIMIT_REACHED, got %+v", decision)
	}
	want := time.Date(2024, 6, 4, 0, 0, 0, 0, time.UTC)
	if decision.RetryAfter == nil || !decision.RetryAfter.Equal(want) {
		t.Fatalf("expected next local midnight %v, got %v", want, decision.RetryAfter)
	}
}

func TestCanAttemptHourlyLimit(t *testing.T) {
	campaign := testCampaign()
	run := domain.RunState{CallsThisHour: campaign.CallsPerHour}

	decision := CanAttempt(campaign, testLead(campaign.ID), run, at(10, 30))
	if decision.Reason != ReasonHourlyLimitReached {
		t.Fatalf("expected HOURLY_LIMIT_REACHED, got %+v", decision)
	}
	want := at(11, 0)
	if decision.RetryAfter == nil || !decision.RetryAfter.Equal(want) {
		t.Fatalf("expected next hour %v, got %v", want, decision.RetryAfter)
	}
}

func TestCanAttemptHourlyLimitUnsetMeansUnlimited(t *testing.T) {
	campaign := testCampaign()
	campaign.CallsPerHour = 0
	run := domain.RunState{CallsThisHour: 10_000}

	if d := CanAttempt(campaign, testLead(campaign.ID), run, at(10, 0)); !d.Allowed {
		t.Fatalf("expected allowed with unlimited hourly rate, got %+v", d)
	}
}

func TestCanAttemptMinInterval(t *testing.T) {
	campaign := testCampaign()
	now := at(10, 0)
	last := now.Add(-10 * time.Second)
	run := domain.RunState{LastCallAt: &last}

	decision := CanAttempt(campaign, testLead(campaign.ID), run, now)
	if decision.Reason != ReasonMinIntervalNotElapsed {
		t.Fatalf("expected MIN_INTERVAL_NOT_ELAPSED, got %+v", decision)
	}
	want := last.Add(campaign.MinCallInterval)
	if decision.RetryAfter == nil || !decision.RetryAfter.Equal(want) {
		t.Fatalf("expected retry at %v, got %v", want, decision.RetryAfter)
	}
}

func TestCanAttemptRetryInterval(t *testing.T) {
	campaign := testCampaign()
	now := at(10, 0)
	lead := testLead(campaign.ID)
	lead.Attempts = 1
	lastAttempt := now.Add(-time.Minute)
	lead.LastAttemptAt = &lastAttempt

	decision := CanAttempt(campaign, lead, domain.RunState{}, now)
	if decision.Reason != ReasonRetryIntervalNotElapsed {
		t.Fatalf("expected RETRY_INTERVAL_NOT_ELAPSED, got %+v", decision)
	}
	want := lastAttempt.Add(campaign.RetryInterval)
	if decision.RetryAfter == nil || !decision.RetryAfter.Equal(want) {
		t.Fatalf("expected retry at %v, got %v", want, decision.RetryAfter)
	}

	// Campaign-wide min interval is checked before the per-lead retry
	// interval.
	run := domain.RunState{LastCallAt: &lastAttempt}
	run.LastCallAt = timePtr(now.Add(-5 * time.Second))
	decision = CanAttempt(campaign, lead, run, now)
	if decision.Reason != ReasonMinIntervalNotElapsed {
		t.Fatalf("expected campaign pacing to win, got %+v", decision)
	}
}

func TestCanAttemptIdempotent(t *testing.T) {
	campaign := testCampaign()
	lead := testLead(campaign.ID)
	lead.Attempts = 1
	lead.LastAttemptAt = timePtr(at(9, 30))
	run := domain.RunState{CallsToday: 5, CallsThisHour: 2, LastCallAt: timePtr(at(9, 58))}
	now := at(10, 0)

	first := CanAttempt(campaign, lead, run, now)
	for i := 0; i < 10; i++ {
		again := CanAttempt(campaign, lead, run, now)
		if again.Allowed != first.Allowed || again.Reason != first.Reason {
			t.Fatalf("decision changed between identical calls: %+v vs %+v", first, again)
		}
	}
}

func TestCanAttemptMonotonicWithinBoundary(t *testing.T) {
	// Once allowed, the decision stays allowed for later instants in the
	// same hour while no state changes.
	campaign := testCampaign()
	lead := testLead(campaign.ID)
	run := domain.RunState{CallsToday: 1, CallsThisHour: 1, LastCallAt: timePtr(at(9, 0))}

	start := at(10, 0)
	if d := CanAttempt(campaign, lead, run, start); !d.Allowed {
		t.Fatalf("expected allowed at %v, got %+v", start, d)
	}
	for _, later := range []time.Time{at(10, 15), at(10, 30), at(10, 59)} {
		if d := CanAttempt(campaign, lead, run, later); !d.Allowed {
			t.Fatalf("expected allowed at %v after being allowed at %v, got %+v", later, start, d)
		}
	}
}

func TestCanAttemptCampaignLocalWindow(t *testing.T) {
	campaign := testCampaign()
	campaign.TimeZone = "America/New_York"

	// 13:00 UTC on 2024-06-03 is 09:00 in New York (EDT): inside the window
	// locally even though the UTC clock reads past it.
	inside := time.Date(2024, 6, 3, 13, 0, 0, 0, time.UTC)
	if d := CanAttempt(campaign, testLead(campaign.ID), domain.RunState{}, inside); !d.Allowed {
		t.Fatalf("expected allowed at local 09:00, got %+v", d)
	}

	// 12:00 UTC is 08:00 local: before the window opens.
	outside := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	d := CanAttempt(campaign, testLead(campaign.ID), domain.RunState{}, outside)
	if d.Reason != ReasonOutsideCallWindow {
		t.Fatalf("expected OUTSIDE_CALL_WINDOW at local 08:00, got %+v", d)
	}
}

func TestRecordOutcomeRetryable(t *testing.T) {
	campaign := testCampaign()
	lead := *testLead(campaign.ID)
	now := at(10, 0)

	updated, run := RecordOutcome(campaign, lead, domain.RunState{CallsToday: 4, CallsThisHour: 2}, domain.ClassifyOutcome(domain.OutcomeBusy), now)

	if updated.Attempts != 1 {
		t.Fatalf("expected attempts=1, got %d", updated.Attempts)
	}
	if updated.Status != domain.LeadStatusPending {
		t.Fatalf("expected lead to stay pending, got %s", updated.Status)
	}
	if updated.LastAttemptAt == nil || !updated.LastAttemptAt.Equal(now) {
		t.Fatalf("expected lastAttemptAt=%v, got %v", now, updated.LastAttemptAt)
	}
	if run.CallsToday != 5 || run.CallsThisHour != 3 {
		t.Fatalf("expected counters 5/3, got %d/%d", run.CallsToday, run.CallsThisHour)
	}
	if run.LastCallAt == nil || !run.LastCallAt.Equal(now) {
		t.Fatalf("expected lastCallAt=%v, got %v", now, run.LastCallAt)
	}
}

func TestRecordOutcomeTerminal(t *testing.T) {
	campaign := testCampaign()
	now := at(10, 0)

	success, _ := RecordOutcome(campaign, *testLead(campaign.ID), domain.RunState{}, domain.ClassifyOutcome(domain.OutcomeAnswered), now)
	if success.Status != domain.LeadStatusCompleted || success.Outcome != domain.OutcomeAnswered {
		t.Fatalf("expected completed/answered, got %s/%s", success.Status, success.Outcome)
	}

	failure, _ := RecordOutcome(campaign, *testLead(campaign.ID), domain.RunState{}, domain.ClassifyOutcome(domain.OutcomeInvalidNumber), now)
	if failure.Status != domain.LeadStatusFailed {
		t.Fatalf("expected failed lead, got %s", failure.Status)
	}
}

func TestRecordOutcomeExhaustionOnFinalAttempt(t *testing.T) {
	campaign := testCampaign()
	lead := *testLead(campaign.ID)
	lead.Attempts = campaign.MaxRetryAttempts - 1
	now := at(10, 0)

	updated, _ := RecordOutcome(campaign, lead, domain.RunState{}, domain.ClassifyOutcome(domain.OutcomeNoAnswer), now)
	if updated.Attempts != campaign.MaxRetryAttempts {
		t.Fatalf("expected attempts=%d, got %d", campaign.MaxRetryAttempts, updated.Attempts)
	}
	if updated.Status != domain.LeadStatusFailed {
		t.Fatalf("expected exhausted lead to be failed, got %s", updated.Status)
	}
}

func TestRecordThenCheckRoundTrip(t *testing.T) {
	campaign := testCampaign()
	lead := *testLead(campaign.ID)
	run := domain.RunState{}
	now := at(10, 0)

	if d := CanAttempt(campaign, &lead, run, now); !d.Allowed {
		t.Fatalf("precondition: expected allowed, got %+v", d)
	}

	lead, run = RecordOutcome(campaign, lead, run, domain.ClassifyOutcome(domain.OutcomeBusy), now)

	// Immediately after recording, both pacing intervals hold the lead back.
	d := CanAttempt(campaign, &lead, run, now.Add(time.Second))
	if d.Allowed || d.Reason != ReasonMinIntervalNotElapsed {
		t.Fatalf("expected MIN_INTERVAL_NOT_ELAPSED right after attempt, got %+v", d)
	}

	// Once the campaign interval has elapsed the per-lead retry interval
	// still applies.
	d = CanAttempt(campaign, &lead, run, now.Add(campaign.MinCallInterval))
	if d.Reason != ReasonRetryIntervalNotElapsed {
		t.Fatalf("expected RETRY_INTERVAL_NOT_ELAPSED, got %+v", d)
	}

	// And after the retry interval the lead is eligible again.
	if d := CanAttempt(campaign, &lead, run, now.Add(campaign.RetryInterval)); !d.Allowed {
		t.Fatalf("expected allowed after retry interval, got %+v", d)
	}
}

func TestReasonCampaignWide(t *testing.T) {
	wide := []Reason{
		ReasonCampaignInactive,
		ReasonOutsideCallWindow,
		ReasonDailyLimitReached,
		ReasonHourlyLimitReached,
		ReasonMinIntervalNotElapsed,
	}
	for _, r := range wide {
		if !r.CampaignWide() {
			t.Errorf("expected %s to be campaign-wide", r)
		}
	}
	for _, r := range []Reason{ReasonLeadTerminal, ReasonRetryExhausted, ReasonRetryIntervalNotElapsed} {
		if r.CampaignWide() {
			t.Errorf("expected %s to be lead-level", r)
		}
	}
}

func timePtr(t time.Time) *time.Time { return &t }
