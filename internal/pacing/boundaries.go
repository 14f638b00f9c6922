package pacing

import (
	"time"

	"github.com/acme/outbound-dialer/internal/domain"
)

// NextWindowOpen computes the next instant at or after now that falls inside
// the campaign's call window: today's opening if the window has not started
// yet, tomorrow's opening otherwise.
func NextWindowOpen(now time.Time, campaign *domain.Campaign) time.Time {
	loc := campaign.Location()
	local := now.In(loc)
	minuteOfDay := local.Hour()*60 + local.Minute()

	day := local
	if minuteOfDay > campaign.Window.StartMinute {
		day = day.AddDate(0, 0, 1)
	}
	return time.Date(day.Year(), day.Month(), day.Day(),
		campaign.Window.StartMinute/60, campaign.Window.StartMinute%60, 0, 0, loc)
}

// StartOfNextLocalDay returns midnight of the next day in loc. Daily call
// counters reset at this boundary.
func StartOfNextLocalDay(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
}

// StartOfNextHour returns the top of the next clock hour in loc. Hourly call
// counters are clock-hour buckets, not a rolling window.
func StartOfNextHour(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), local.Hour()+1, 0, 0, 0, loc)
}

// DayBucket labels the campaign-local calendar day containing t.
func DayBucket(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// HourBucket labels the campaign-local clock hour containing t.
func HourBucket(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02T15")
}
