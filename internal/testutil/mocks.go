package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/core"
)

// MockModel implements core.Model for testing. Responses are served in
// order; the last one repeats once the script is exhausted.
type MockModel struct {
	name         string
	responses    []string
	completeFunc func(context.Context, core.CompletionRequest) (*core.CompletionResult, error)
	calls        []MockCall
	mu           sync.Mutex
}

// MockCall records a call to the mock.
type MockCall struct {
	Request   core.CompletionRequest
	Timestamp time.Time
}

// NewMockModel creates a new mock model.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		name:  name,
		calls: make([]MockCall, 0),
	}
}

// Name returns the mock name.
func (m *MockModel) Name() string {
	return m.name
}

// Complete mocks a completion call.
func (m *MockModel) Complete(ctx context.Context, req core.CompletionRequest) (*core.CompletionResult, error) {
	n := m.recordCall(req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	fn := m.completeFunc
	responses := m.responses
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if len(responses) > 0 {
		return result(responses[min(n, len(responses)-1)]), nil
	}

	preview := req.UserPrompt
	if len(preview) > 50 {
		preview = preview[:50]
	}
	return result(fmt.Sprintf("Mock response for: %s", preview)), nil
}

func result(text string) *core.CompletionResult {
	return &core.CompletionResult{
		Text:      text,
		TokensIn:  100,
		TokensOut: len(text) / 4,
		Duration:  time.Millisecond,
	}
}

// WithCompleteFunc sets a custom completion function.
func (m *MockModel) WithCompleteFunc(fn func(context.Context, core.CompletionRequest) (*core.CompletionResult, error)) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completeFunc = fn
	return m
}

// WithResponses scripts the responses returned by successive calls.
func (m *MockModel) WithResponses(responses ...string) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = responses
	return m
}

// WithError configures the mock to return an error.
func (m *MockModel) WithError(err error) *MockModel {
	return m.WithCompleteFunc(func(context.Context, core.CompletionRequest) (*core.CompletionResult, error) {
		return nil, err
	})
}

// Calls returns recorded calls.
func (m *MockModel) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall{}, m.calls...)
}

// CallCount returns the number of calls whose user prompt contains substr.
// An empty substr counts every call.
func (m *MockModel) CallCount(substr string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.calls {
		if substr == "" || strings.Contains(c.Request.UserPrompt, substr) {
			count++
		}
	}
	return count
}

// Reset clears call history.
func (m *MockModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = make([]MockCall, 0)
}

// recordCall stores the request and returns its zero-based position.
func (m *MockModel) recordCall(req core.CompletionRequest) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{
		Request:   req,
		Timestamp: time.Now(),
	})
	return len(m.calls) - 1
}

// Router dispatches a request to the first route whose marker appears in the
// user prompt. It lets one mock model serve planner, agent and final calls.
type Router struct {
	routes   []route
	fallback string
	mu       sync.Mutex
}

type route struct {
	marker    string
	responses []string
	served    int
}

// NewRouter creates a router that answers fallback when no route matches.
func NewRouter(fallback string) *Router {
	return &Router{fallback: fallback}
}

// On adds a route. Responses are served in order; the last one repeats.
func (r *Router) On(marker string, responses ...string) *Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, route{marker: marker, responses: responses})
	return r
}

// Complete is usable as a MockModel completion function.
func (r *Router) Complete(_ context.Context, req core.CompletionRequest) (*core.CompletionResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.routes {
		rt := &r.routes[i]
		if !strings.Contains(req.UserPrompt, rt.marker) && !strings.Contains(req.SystemPrompt, rt.marker) {
			continue
		}
		if len(rt.responses) == 0 {
			break
		}
		text := rt.responses[min(rt.served, len(rt.responses)-1)]
		rt.served++
		return result(text), nil
	}
	return result(r.fallback), nil
}
