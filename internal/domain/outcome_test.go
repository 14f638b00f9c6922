package domain

import "testing"

func TestClassifyOutcome(t *testing.T) {
	cases := []struct {
		tag      string
		terminal bool
		success  bool
	}{
		{OutcomeAnswered, true, true},
		{OutcomeInvalidNumber, true, false},
		{OutcomeDoNotCall, true, false},
		{OutcomeBusy, false, false},
		{OutcomeNoAnswer, false, false},
		{OutcomeVoicemail, false, false},
		{OutcomeProviderError, false, false},
		{"something_new", false, false},
	}

	for _, tc := range cases {
		got := ClassifyOutcome(tc.tag)
		if got.Tag != tc.tag {
			t.Errorf("%s: tag = %s", tc.tag, got.Tag)
		}
		if got.Terminal != tc.terminal {
			t.Errorf("%s: terminal = %v, want %v", tc.tag, got.Terminal, tc.terminal)
		}
		if got.Success != tc.success {
			t.Errorf("%s: success = %v, want %v", tc.tag, got.Success, tc.success)
		}
	}
}

func TestLeadStatusTerminal(t *testing.T) {
	terminal := []LeadStatus{LeadStatusCompleted, LeadStatusFailed, LeadStatusSkipped}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	open := []LeadStatus{LeadStatusPending, LeadStatusCalling}
	for _, s := range open {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
