// Package pacing decides whether a lead may be dialed right now under its
// campaign's policy. The functions here are pure: they operate on snapshots
// passed by the caller and hold no state of their own, so the same inputs
// always yield the same decision. Callers remain responsible for making the
// decision and the counter update atomic (see internal/runstate).
package pacing

import (
	"time"

	"github.com/acme/outbound-dialer/internal/domain"
)

// Reason identifies why an attempt was deferred. Deferrals are expected and
// frequent; they drive scheduling, not error handling.
type Reason string

const (
	ReasonCampaignInactive       Reason = "CAMPAIGN_INACTIVE"
	ReasonLeadTerminal           Reason = "LEAD_TERMINAL"
	ReasonRetryExhausted         Reason = "RETRY_EXHAUSTED"
	ReasonOutsideCallWindow      Reason = "OUTSIDE_CALL_WINDOW"
	ReasonDailyLimitReached      Reason = "DAILY_LIMIT_REACHED"
	ReasonHourlyLimitReached     Reason = "HOURLY_LIMIT_REACHED"
	ReasonMinIntervalNotElapsed  Reason = "MIN_INTERVAL_NOT_ELAPSED"
	ReasonRetryIntervalNotElapsed Reason = "RETRY_INTERVAL_NOT_ELAPSED"
)

// CampaignWide reports whether the deferral applies to every lead of the
// campaign, letting a scanner stop early instead of re-checking each lead.
func (r Reason) CampaignWide() bool {
	switch r {
	case ReasonCampaignInactive, ReasonOutsideCallWindow, ReasonDailyLimitReached,
		ReasonHourlyLimitReached, ReasonMinIntervalNotElapsed:
		return true
	}
	return false
}

// Decision is the outcome of a pacing check. RetryAfter, when set, is the
// earliest instant at which the same check might pass; it is a best-effort
// estimate because other attempts may consume capacity in the interim, so
// callers must re-check rather than trust it blindly. A nil RetryAfter means
// eligibility depends on an external state change.
type Decision struct {
	Allowed    bool
	Reason     Reason
	RetryAfter *time.Time
}

func allowed() Decision {
	return Decision{Allowed: true}
}

func deferred(reason Reason, retryAfter *time.Time) Decision {
	return Decision{Reason: reason, RetryAfter: retryAfter}
}

// CanAttempt answers whether it is legal to call lead under the campaign's
// policy at time now, given the run-state snapshot. Checks are evaluated in
// a fixed order and the first failing check wins: campaign-level and
// terminal checks first, then window arithmetic, then campaign-wide pacing,
// then per-lead retry pacing. Configuration is assumed valid; malformed
// campaigns are rejected at creation time.
func CanAttempt(campaign *domain.Campaign, lead *domain.Lead, run domain.RunState, now time.Time) Decision {
	if campaign.Status != domain.CampaignStatusActive {
		return deferred(ReasonCampaignInactive, nil)
	}
	if campaign.StartDate != nil && now.Before(*campaign.StartDate) {
		start := *campaign.StartDate
		return deferred(ReasonCampaignInactive, &start)
	}
	if campaign.EndDate != nil && now.After(*campaign.EndDate) {
		return deferred(ReasonCampaignInactive, nil)
	}

	if lead.Status.Terminal() {
		return deferred(ReasonLeadTerminal, nil)
	}

	if lead.Attempts >= campaign.MaxRetryAttempts {
		return deferred(ReasonRetryExhausted, nil)
	}

	loc := campaign.Location()
	local := now.In(loc)
	if !campaign.Window.Contains(local.Hour()*60 + local.Minute()) {
		open := NextWindowOpen(now, campaign)
		return deferred(ReasonOutsideCallWindow, &open)
	}

	if run.CallsToday >= campaign.DailyCallLimit {
		next := StartOfNextLocalDay(now, loc)
		return deferred(ReasonDailyLimitReached, &next)
	}

	if campaign.CallsPerHour > 0 && run.CallsThisHour >= campaign.CallsPerHour {
		next := StartOfNextHour(now, loc)
		return deferred(ReasonHourlyLimitReached, &next)
	}

	if run.LastCallAt != nil && now.Sub(*run.LastCallAt) < campaign.MinCallInterval {
		next := run.LastCallAt.Add(campaign.MinCallInterval)
		return deferred(ReasonMinIntervalNotElapsed, &next)
	}

	if lead.Attempts > 0 && lead.LastAttemptAt != nil && now.Sub(*lead.LastAttemptAt) < campaign.RetryInterval {
		next := lead.LastAttemptAt.Add(campaign.RetryInterval)
		return deferred(ReasonRetryIntervalNotElapsed, &next)
	}

	return allowed()
}

// RecordOutcome applies one attempt's result to copies of the lead and
// run-state, returning the updated values. A terminal outcome moves the lead
// to completed or failed; a retryable outcome landing on the final permitted
// attempt moves it to failed so an exhausted lead never lingers as pending.
func RecordOutcome(campaign *domain.Campaign, lead domain.Lead, run domain.RunState, outcome domain.Outcome, now time.Time) (domain.Lead, domain.RunState) {
	lead.Attempts++
	at := now
	lead.LastAttemptAt = &at
	lead.UpdatedAt = now

	switch {
	case outcome.Terminal && outcome.Success:
		lead.Status = domain.LeadStatusCompleted
		lead.Outcome = outcome.Tag
	case outcome.Terminal:
		lead.Status = domain.LeadStatusFailed
		lead.Outcome = outcome.Tag
	case lead.Attempts >= campaign.MaxRetryAttempts:
		lead.Status = domain.LeadStatusFailed
		lead.Outcome = outcome.Tag
	default:
		lead.Status = domain.LeadStatusPending
	}

	run.CallsToday++
	run.CallsThisHour++
	last := now
	run.LastCallAt = &last

	return lead, run
}
