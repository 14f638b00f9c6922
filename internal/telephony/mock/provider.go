package mock

import (
	"context"
	"math/rand"
	"time"

	"github.com/acme/outbound-dialer/internal/config"
	"github.com/acme/outbound-dialer/internal/domain"
	"github.com/acme/outbound-dialer/internal/queue"
	"github.com/acme/outbound-dialer/internal/telephony"
)

// Provider simulates outbound call behaviour with a weighted outcome mix.
type Provider struct {
	timeout time.Duration
	rng     *rand.Rand
}

// NewProvider constructs a mock provider.
func NewProvider(cfg config.CallBridgeConfig) *Provider {
	return &Provider{
		timeout: cfg.RequestTimeout,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// PlaceCall simulates a call attempt.
func (p *Provider) PlaceCall(ctx context.Context, msg queue.DispatchMessage) (telephony.Result, error) {
	duration := time.Duration(1+p.rng.Intn(5)) * time.Second
	if p.timeout > 0 && duration > p.timeout {
		duration = p.timeout
	}

	select {
	case <-ctx.Done():
		return telephony.Result{
			OutcomeTag: domain.OutcomeProviderError,
			Duration:   duration,
			Retryable:  true,
			Error:      ctx.Err().Error(),
		}, ctx.Err()
	case <-time.After(duration):
	}

	tag := p.pickOutcome()
	result := telephony.Result{OutcomeTag: tag, Duration: duration}
	switch tag {
	case domain.OutcomeProviderError:
		result.Retryable = true
		result.Error = "simulated bridge failure"
	case domain.OutcomeBusy, domain.OutcomeNoAnswer, domain.OutcomeVoicemail:
		result.Retryable = true
	}
	return result, nil
}

func (p *Provider) pickOutcome() string {
	roll := p.rng.Float64()
	switch {
	case roll < 0.55:
		return domain.OutcomeAnswered
	case roll < 0.70:
		return domain.OutcomeNoAnswer
	case roll < 0.80:
		return domain.OutcomeBusy
	case roll < 0.90:
		return domain.OutcomeVoicemail
	case roll < 0.95:
		return domain.OutcomeInvalidNumber
	default:
		return domain.OutcomeProviderError
	}
}
