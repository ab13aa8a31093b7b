// Package llm adapts completion providers to core.Model: the OpenAI chat
// API, the AWS Bedrock Converse API, a local command and an offline
// scripted model. New wraps the selected provider with rate limiting and a
// circuit breaker.
package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/config"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/core"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/logging"
)

// Factory creates a model from configuration.
type Factory func(ctx context.Context, cfg config.LLMConfig, logger *logging.Logger) (core.Model, error)

// Registry maps provider names to factories.
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// NewRegistry creates a registry with the built-in providers.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("openai", func(_ context.Context, cfg config.LLMConfig, logger *logging.Logger) (core.Model, error) {
		return NewOpenAIModel(cfg, logger)
	})
	r.Register("bedrock", func(ctx context.Context, cfg config.LLMConfig, logger *logging.Logger) (core.Model, error) {
		return NewBedrockModel(ctx, cfg, logger)
	})
	r.Register("command", func(_ context.Context, cfg config.LLMConfig, logger *logging.Logger) (core.Model, error) {
		return NewCommandModel(cfg, logger)
	})
	r.Register("scripted", func(_ context.Context, _ config.LLMConfig, _ *logging.Logger) (core.Model, error) {
		return NewScriptedModel(), nil
	})
	return r
}

// Register adds or replaces the factory for a provider.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Build creates the model for cfg.Provider.
func (r *Registry) Build(ctx context.Context, cfg config.LLMConfig, logger *logging.Logger) (core.Model, error) {
	r.mu.RLock()
	f, ok := r.factories[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, core.ErrConfiguration(core.CodeInvalidConfig,
			fmt.Sprintf("unknown llm provider %q (available: %v)", cfg.Provider, r.List()))
	}

	m, err := f(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating %s model: %w", cfg.Provider, err)
	}
	return m, nil
}

// List returns the registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
