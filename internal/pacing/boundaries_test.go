package pacing

import (
	"testing"
	"time"

	"github.com/acme/outbound-dialer/internal/domain"
)

func TestNextWindowOpenSameDay(t *testing.T) {
	campaign := testCampaign()
	now := at(7, 45)

	open := NextWindowOpen(now, campaign)
	if want := at(9, 0); !open.Equal(want) {
		t.Fatalf("expected %v, got %v", want, open)
	}
}

func TestNextWindowOpenRollsToTomorrow(t *testing.T) {
	campaign := testCampaign()
	now := at(18, 0)

	open := NextWindowOpen(now, campaign)
	if want := time.Date(2024, 6, 4, 9, 0, 0, 0, time.UTC); !open.Equal(want) {
		t.Fatalf("expected %v, got %v", want, open)
	}
}

func TestNextWindowOpenInsideWindowIsToday(t *testing.T) {
	// Callers only consult NextWindowOpen on deferral, but an in-window
	// instant must still map to today's opening, not tomorrow's.
	campaign := testCampaign()
	open := NextWindowOpen(at(9, 0), campaign)
	if want := at(9, 0); !open.Equal(want) {
		t.Fatalf("expected %v, got %v", want, open)
	}
}

func TestStartOfNextLocalDayCrossesMonthEnd(t *testing.T) {
	loc := time.UTC
	now := time.Date(2024, 6, 30, 23, 59, 0, 0, loc)

	next := StartOfNextLocalDay(now, loc)
	if want := time.Date(2024, 7, 1, 0, 0, 0, 0, loc); !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
}

func TestStartOfNextHour(t *testing.T) {
	loc := time.UTC
	next := StartOfNextHour(time.Date(2024, 6, 3, 23, 10, 0, 0, loc), loc)
	if want := time.Date(2024, 6, 4, 0, 0, 0, 0, loc); !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
}

func TestBucketsFollowCampaignLocalTime(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	// 2024-06-04 01:30 UTC is still 2024-06-03 21:30 in New York.
	instant := time.Date(2024, 6, 4, 1, 30, 0, 0, time.UTC)
	if got := DayBucket(instant, loc); got != "2024-06-03" {
		t.Fatalf("expected local day bucket 2024-06-03, got %s", got)
	}
	if got := HourBucket(instant, loc); got != "2024-06-03T21" {
		t.Fatalf("expected local hour bucket 2024-06-03T21, got %s", got)
	}
}

func TestParseCallWindow(t *testing.T) {
	window, err := domain.ParseCallWindow("09:00", "17:30")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if window.StartMinute != 540 || window.EndMinute != 1050 {
		t.Fatalf("unexpected window %+v", window)
	}

	if _, err := domain.ParseCallWindow("17:00", "09:00"); err == nil {
		t.Fatalf("expected inverted window to be rejected")
	}
	if _, err := domain.ParseCallWindow("9am", "17:00"); err == nil {
		t.Fatalf("expected malformed time to be rejected")
	}
}
