package core

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatConfiguration ErrorCategory = "configuration" // Workflow or content type unusable
	ErrCatValidation    ErrorCategory = "validation"    // Invalid input
	ErrCatPlanning      ErrorCategory = "planning"      // Scene plan could not be produced
	ErrCatExecution     ErrorCategory = "execution"     // Model call failed
	ErrCatTimeout       ErrorCategory = "timeout"       // Model call timed out
	ErrCatRateLimit     ErrorCategory = "rate_limit"    // Provider rate limited
	ErrCatAssembly      ErrorCategory = "assembly"      // Final agent output unusable
	ErrCatPolicy        ErrorCategory = "policy"        // Content policy violation
	ErrCatIntegrity     ErrorCategory = "integrity"     // Post-assembly invariant broken
	ErrCatInternal      ErrorCategory = "internal"      // Unexpected internal error
)

// DomainError represents a structured error from the domain layer.
type DomainError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Retryable bool
	Cause     error
	Details   map[string]interface{}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetail adds contextual information.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ErrConfiguration creates a configuration error. Configuration errors are
// surfaced to the caller and never retried.
func ErrConfiguration(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatConfiguration,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrNoWorkflowConfigured is returned when a content type has no agents.
func ErrNoWorkflowConfigured(contentType string) *DomainError {
	return ErrConfiguration(CodeNoWorkflow,
		fmt.Sprintf("content type %q has no agent workflow configured", contentType)).
		WithDetail("content_type", contentType)
}

// ErrWorkflowCycle is returned when custom-mode dependencies form a cycle.
func ErrWorkflowCycle(agents []string) *DomainError {
	return ErrConfiguration(CodeDAGCycle, "agent dependency graph contains a cycle").
		WithDetail("agents", agents)
}

// ErrValidation creates a validation error.
func ErrValidation(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatValidation,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrPlanningFailure is returned when the scene planner recovers no scenes.
func ErrPlanningFailure(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatPlanning,
		Code:      CodePlanningFailed,
		Message:   message,
		Retryable: false,
	}
}

// ErrAgentInvocation creates an execution error for a failed model call.
func ErrAgentInvocation(agentID, message string) *DomainError {
	return (&DomainError{
		Category:  ErrCatExecution,
		Code:      CodeAgentFailed,
		Message:   message,
		Retryable: true,
	}).WithDetail("agent_id", agentID)
}

// ErrAgentTimeout creates a timeout error for a model call that exceeded
// its deadline.
func ErrAgentTimeout(agentID string) *DomainError {
	return (&DomainError{
		Category:  ErrCatTimeout,
		Code:      CodeAgentTimeout,
		Message:   fmt.Sprintf("agent %s timed out", agentID),
		Retryable: true,
	}).WithDetail("agent_id", agentID)
}

// ErrRateLimit creates a rate limit error.
func ErrRateLimit(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatRateLimit,
		Code:      CodeRateLimited,
		Message:   message,
		Retryable: true,
	}
}

// ErrProvider creates an execution error raised by a model provider before
// or instead of a completion. Only an unavailable provider is retryable.
func ErrProvider(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatExecution,
		Code:      code,
		Message:   message,
		Retryable: code == CodeProviderUnavailable,
	}
}

// ErrFinalAgentOutputMissing is returned when the final agent response has
// no usable imagePrompt.
func ErrFinalAgentOutputMissing(agentID string, sceneIndex int) *DomainError {
	return &DomainError{
		Category:  ErrCatAssembly,
		Code:      CodeFinalOutputMissing,
		Message:   fmt.Sprintf("final agent %s returned no usable imagePrompt for scene %d", agentID, sceneIndex),
		Retryable: false,
		Details: map[string]interface{}{
			"agent_id":    agentID,
			"scene_index": sceneIndex,
		},
	}
}

// ErrContentPolicyViolation describes banned vocabulary found in a scene.
// It is a retry signal, not a fatal error.
func ErrContentPolicyViolation(sceneIndex int, terms []string) *DomainError {
	return &DomainError{
		Category:  ErrCatPolicy,
		Code:      CodeContentPolicy,
		Message:   fmt.Sprintf("scene %d uses banned vocabulary: %v", sceneIndex, terms),
		Retryable: true,
		Details: map[string]interface{}{
			"scene_index": sceneIndex,
			"terms":       terms,
		},
	}
}

// ErrSceneIndexIntegrity is returned when assembled scenes are not indexed
// 1..n without gaps or repeats.
func ErrSceneIndexIntegrity(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatIntegrity,
		Code:      CodeSceneIndexIntegrity,
		Message:   message,
		Retryable: false,
	}
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Retryable
	}
	return false
}

// GetCategory extracts the error category.
func GetCategory(err error) ErrorCategory {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Category
	}
	return ErrCatInternal
}

// IsCategory checks if an error belongs to a category.
func IsCategory(err error, cat ErrorCategory) bool {
	return GetCategory(err) == cat
}

// IsCode checks if an error carries the given domain error code.
func IsCode(err error, code string) bool {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Code == code
	}
	return false
}

// Predefined error codes
const (
	// Configuration error codes
	CodeNoWorkflow      = "NO_WORKFLOW_CONFIGURED"
	CodeNoFinalAgent    = "NO_FINAL_AGENT"
	CodeInvalidWorkflow = "INVALID_WORKFLOW"
	CodeDAGCycle        = "DAG_CYCLE"
	CodeInvalidConfig   = "INVALID_CONFIG"

	// Validation error codes
	CodeEmptyPrompt   = "EMPTY_PROMPT"
	CodeInvalidInputs = "INVALID_INPUTS"

	// Generation error codes
	CodePlanningFailed      = "PLANNING_FAILED"
	CodeAgentFailed         = "AGENT_FAILED"
	CodeAgentTimeout        = "AGENT_TIMEOUT"
	CodeFinalOutputMissing  = "FINAL_AGENT_OUTPUT_MISSING"
	CodeContentPolicy       = "CONTENT_POLICY_VIOLATION"
	CodeSceneIndexIntegrity = "SCENE_INDEX_INTEGRITY"

	// Provider error codes
	CodeRateLimited         = "RATE_LIMITED"
	CodeProviderAuth        = "PROVIDER_AUTH"
	CodeProviderUnavailable = "PROVIDER_UNAVAILABLE"
	CodeProviderRequest     = "PROVIDER_REQUEST"
)
