package telephony

import (
	"context"
	"time"

	"github.com/acme/outbound-dialer/internal/queue"
)

// Result captures the outcome of a single telephony attempt. Tag is one of
// the outcome tags defined in the domain package; Retryable reflects the
// provider's own view of whether a later attempt could succeed.
type Result struct {
	OutcomeTag string
	Duration   time.Duration
	Retryable  bool
	Error      string
}

// Provider abstracts the telephony integration.
type Provider interface {
	PlaceCall(ctx context.Context, msg queue.DispatchMessage) (Result, error)
}
