package domain

// Outcome classifies the result of a single call attempt.
type Outcome struct {
	Tag      string
	Terminal bool
	Success  bool
}

// Well-known outcome tags reported by the telephony bridge.
const (
	OutcomeAnswered      = "answered"
	OutcomeBusy          = "busy"
	OutcomeNoAnswer      = "no_answer"
	OutcomeVoicemail     = "voicemail"
	OutcomeInvalidNumber = "invalid_number"
	OutcomeDoNotCall     = "do_not_call"
	OutcomeProviderError = "provider_error"
)

// ClassifyOutcome maps an outcome tag onto the default terminal/retryable
// taxonomy. Which tags end a lead is business policy; keeping the mapping in
// one table lets operators swap it without touching the pacing evaluator.
func ClassifyOutcome(tag string) Outcome {
	switch tag {
	case OutcomeAnswered:
		return Outcome{Tag: tag, Terminal: true, Success: true}
	case OutcomeInvalidNumber, OutcomeDoNotCall:
		return Outcome{Tag: tag, Terminal: true, Success: false}
	case OutcomeBusy, OutcomeNoAnswer, OutcomeVoicemail, OutcomeProviderError:
		return Outcome{Tag: tag, Terminal: false, Success: false}
	default:
		// Unknown tags are treated as retryable failures so a provider
		// rollout cannot silently burn leads.
		return Outcome{Tag: tag, Terminal: false, Success: false}
	}
}
