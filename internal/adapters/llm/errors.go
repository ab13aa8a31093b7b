package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/core"
)

// statusError maps an HTTP status returned by a provider to a domain error.
func statusError(provider string, status int, msg string, cause error) error {
	text := fmt.Sprintf("%s: %s", provider, msg)
	switch {
	case status == http.StatusTooManyRequests:
		return core.ErrRateLimit(text).WithCause(cause)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return core.ErrProvider(core.CodeProviderAuth, text).WithCause(cause)
	case status >= http.StatusInternalServerError:
		return core.ErrProvider(core.CodeProviderUnavailable, text).WithCause(cause)
	default:
		return core.ErrProvider(core.CodeProviderRequest, text).WithCause(cause)
	}
}

// transportError wraps an error that never reached the provider. Context
// errors pass through so callers can tell cancellation from failure.
func transportError(provider string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return core.ErrProvider(core.CodeProviderUnavailable, fmt.Sprintf("%s: %v", provider, err)).WithCause(err)
}

// classifyMessage maps free-form provider output to a domain error.
func classifyMessage(provider, msg string) error {
	lower := strings.ToLower(msg)
	text := fmt.Sprintf("%s: %s", provider, msg)
	switch {
	case containsAny(lower, "rate limit", "too many requests", "429", "quota"):
		return core.ErrRateLimit(text)
	case containsAny(lower, "unauthorized", "authentication", "api key", "forbidden"):
		return core.ErrProvider(core.CodeProviderAuth, text)
	case containsAny(lower, "connection", "network", "unreachable", "unavailable", "overloaded"):
		return core.ErrProvider(core.CodeProviderUnavailable, text)
	default:
		return core.ErrProvider(core.CodeProviderRequest, text)
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// estimateTokens approximates a token count for providers that report none.
func estimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return max(len(s)/4, 1)
}
