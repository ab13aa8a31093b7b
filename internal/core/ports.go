package core

import (
	"context"
	"time"
)

// =============================================================================
// Model Port
// =============================================================================

// Model defines the contract for LLM completion providers.
type Model interface {
	// Name returns the provider identifier (e.g., "openai", "bedrock").
	Name() string

	// Complete sends one prompt and returns the raw response text.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error)
}

// CompletionRequest is one text-completion call.
type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float64
	MaxTokens    int
	Model        string // Optional override of the provider default
}

// Prompt joins the system and user portions into a single string, for
// providers without a separate system channel.
func (r CompletionRequest) Prompt() string {
	if r.SystemPrompt == "" {
		return r.UserPrompt
	}
	return r.SystemPrompt + "\n\n" + r.UserPrompt
}

// CompletionResult is the untrusted model output plus usage metadata.
type CompletionResult struct {
	Text         string
	TokensIn     int
	TokensOut    int
	Model        string
	Duration     time.Duration
	FinishReason string
}
