package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/config"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/core"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/logging"
)

const defaultBreakerFailures = 5

// BreakerModel fails fast once the wrapped model has failed repeatedly,
// until the open-state timeout lets a probe through.
type BreakerModel struct {
	inner   core.Model
	breaker *gobreaker.CircuitBreaker[*core.CompletionResult]
}

// NewBreakerModel wraps inner with a circuit breaker.
func NewBreakerModel(inner core.Model, cfg config.CircuitBreakerConfig, logger *logging.Logger) *BreakerModel {
	if logger == nil {
		logger = logging.NewNop()
	}
	maxFailures := uint32(defaultBreakerFailures)
	if cfg.MaxFailures > 0 {
		maxFailures = uint32(cfg.MaxFailures)
	}

	cb := gobreaker.NewCircuitBreaker[*core.CompletionResult](gobreaker.Settings{
		Name:        "llm:" + inner.Name(),
		MaxRequests: 1,
		Interval:    cfg.IntervalDuration(),
		Timeout:     cfg.TimeoutDuration(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// Cancellations and rejected requests say nothing about provider health.
			return err == nil ||
				errors.Is(err, context.Canceled) ||
				core.IsCode(err, core.CodeProviderRequest)
		},
	})
	return &BreakerModel{inner: inner, breaker: cb}
}

// Name implements core.Model.
func (m *BreakerModel) Name() string { return m.inner.Name() }

// Complete implements core.Model.
func (m *BreakerModel) Complete(ctx context.Context, req core.CompletionRequest) (*core.CompletionResult, error) {
	res, err := m.breaker.Execute(func() (*core.CompletionResult, error) {
		return m.inner.Complete(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, core.ErrProvider(core.CodeProviderUnavailable,
			fmt.Sprintf("%s: circuit open", m.inner.Name())).WithCause(err)
	}
	return res, err
}

// State returns the breaker state.
func (m *BreakerModel) State() gobreaker.State {
	return m.breaker.State()
}

// RateLimitedModel spaces calls to the wrapped model with a token bucket.
type RateLimitedModel struct {
	inner   core.Model
	limiter *rate.Limiter
}

// NewRateLimitedModel allows rpm calls per minute with the given burst.
func NewRateLimitedModel(inner core.Model, rpm, burst int) *RateLimitedModel {
	return &RateLimitedModel{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), max(burst, 1)),
	}
}

// Name implements core.Model.
func (m *RateLimitedModel) Name() string { return m.inner.Name() }

// Complete implements core.Model.
func (m *RateLimitedModel) Complete(ctx context.Context, req core.CompletionRequest) (*core.CompletionResult, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		// The wait would outlast the deadline.
		return nil, context.DeadlineExceeded
	}
	return m.inner.Complete(ctx, req)
}
