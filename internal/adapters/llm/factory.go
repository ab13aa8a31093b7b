package llm

import (
	"context"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/config"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/core"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/logging"
)

// New builds the configured model. Remote providers are wrapped with the
// configured rate limit and circuit breaker; the scripted model is not.
func New(ctx context.Context, cfg config.LLMConfig, logger *logging.Logger) (core.Model, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	model, err := NewRegistry().Build(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Provider == "scripted" {
		return model, nil
	}

	if cfg.RateLimitRPM > 0 {
		model = NewRateLimitedModel(model, cfg.RateLimitRPM, cfg.Burst)
	}
	if cfg.CircuitBreaker.Enabled {
		model = NewBreakerModel(model, cfg.CircuitBreaker, logger)
	}
	logger.Debug("llm provider ready", "provider", cfg.Provider, "model", cfg.Model)
	return model, nil
}
