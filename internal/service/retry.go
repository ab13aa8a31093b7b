package service

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/core"
)

// RetryTrigger inspects a produced scene and reports the reasons it must be
// regenerated. An empty result accepts the scene.
type RetryTrigger interface {
	Name() string
	Check(scene *core.GeneratedScene) []string
}

// RetryPolicy bounds how often a scene is regenerated when its trigger
// fires. MaxAttempts counts regenerations after the first attempt. Model
// failures are never retried by the policy.
type RetryPolicy struct {
	MaxAttempts  int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	JitterFactor float64 // 0.0 to 1.0
	Multiplier   float64 // Exponential factor
	Trigger      RetryTrigger
}

// DefaultRetryPolicy regenerates once, immediately.
func DefaultRetryPolicy(trigger RetryTrigger) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts: 1,
		Multiplier:  2.0,
		Trigger:     trigger,
	}
}

// RetryPolicyOption configures a retry policy.
type RetryPolicyOption func(*RetryPolicy)

// WithMaxAttempts sets the number of regenerations.
func WithMaxAttempts(n int) RetryPolicyOption {
	return func(p *RetryPolicy) {
		p.MaxAttempts = n
	}
}

// WithBaseDelay sets the initial delay.
func WithBaseDelay(d time.Duration) RetryPolicyOption {
	return func(p *RetryPolicy) {
		p.BaseDelay = d
	}
}

// WithMaxDelay sets the maximum delay.
func WithMaxDelay(d time.Duration) RetryPolicyOption {
	return func(p *RetryPolicy) {
		p.MaxDelay = d
	}
}

// WithJitter sets the jitter factor.
func WithJitter(factor float64) RetryPolicyOption {
	return func(p *RetryPolicy) {
		p.JitterFactor = factor
	}
}

// WithMultiplier sets the exponential multiplier.
func WithMultiplier(m float64) RetryPolicyOption {
	return func(p *RetryPolicy) {
		p.Multiplier = m
	}
}

// NewRetryPolicy creates a retry policy for trigger.
func NewRetryPolicy(trigger RetryTrigger, opts ...RetryPolicyOption) *RetryPolicy {
	p := DefaultRetryPolicy(trigger)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AttemptFunc produces one candidate scene. attempt is zero for the first
// call; violations holds the trigger's findings on the previous candidate.
type AttemptFunc func(ctx context.Context, attempt int, violations []string) (*core.GeneratedScene, error)

// RetryNotifyFunc is called before each regeneration.
type RetryNotifyFunc func(attempt int, violations []string, delay time.Duration)

// Execute runs fn until the trigger accepts the scene or the attempts are
// spent. A scene still violating after the last attempt is returned as-is.
func (p *RetryPolicy) Execute(ctx context.Context, fn AttemptFunc, notify RetryNotifyFunc) (*core.GeneratedScene, error) {
	var violations []string

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		scene, err := fn(ctx, attempt, violations)
		if err != nil {
			return nil, err
		}
		if p == nil || p.Trigger == nil || attempt >= p.MaxAttempts {
			return scene, nil
		}

		violations = p.Trigger.Check(scene)
		if len(violations) == 0 {
			return scene, nil
		}

		delay := p.CalculateDelay(attempt + 1)
		if notify != nil {
			notify(attempt+1, violations, delay)
		}
		if delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
}

// CalculateDelay computes the delay before regeneration number attempt.
func (p *RetryPolicy) CalculateDelay(attempt int) time.Duration {
	delay := p.CalculateDelayNoJitter(attempt)
	if p.JitterFactor > 0 && delay > 0 {
		return time.Duration(addJitter(float64(delay), p.JitterFactor))
	}
	return delay
}

// CalculateDelayNoJitter computes the delay without jitter.
func (p *RetryPolicy) CalculateDelayNoJitter(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult <= 0 {
		mult = 1
	}
	delay := float64(p.BaseDelay) * math.Pow(mult, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}

// addJitter adds random jitter between -factor and +factor of delay.
func addJitter(delay float64, factor float64) float64 {
	jitter := delay * factor
	return delay + (rand.Float64()*2-1)*jitter
}
