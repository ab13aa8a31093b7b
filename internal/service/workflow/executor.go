package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/core"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/logging"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/service"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/tracing"
)

// AgentExecutor performs one agent call and coerces its response.
type AgentExecutor struct {
	model      core.Model
	schemas    map[string]SchemaSet
	timeout    time.Duration
	maxTokens  int
	logger     *logging.Logger
	observer   Observer
	transcript service.TranscriptWriter
}

// ExecutorConfig configures an AgentExecutor.
type ExecutorConfig struct {
	// Timeout bounds each call; zero means only the caller's deadline.
	Timeout   time.Duration
	MaxTokens int
	Schemas   map[string]SchemaSet
	Logger    *logging.Logger
	Observer  Observer

	// Transcript records every prompt and response when set.
	Transcript service.TranscriptWriter
}

// NewAgentExecutor creates an executor calling model.
func NewAgentExecutor(model core.Model, cfg ExecutorConfig) *AgentExecutor {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	if cfg.Observer == nil {
		cfg.Observer = NopObserver{}
	}
	if cfg.Transcript == nil {
		cfg.Transcript = service.NopTranscript{}
	}
	return &AgentExecutor{
		model:      model,
		schemas:    cfg.Schemas,
		timeout:    cfg.Timeout,
		maxTokens:  cfg.MaxTokens,
		logger:     cfg.Logger,
		observer:   cfg.Observer,
		transcript: cfg.Transcript,
	}
}

// ExecuteRequest is one agent invocation.
type ExecuteRequest struct {
	Agent   core.AgentDefinition
	Scene   core.SceneInfo
	Prompt  core.CompletionRequest
	Final   bool
	Attempt int
}

// ExecuteResult is the coerced outcome of an invocation.
type ExecuteResult struct {
	Coercion   *Coercion
	Completion *core.CompletionResult
}

// Execute calls the model once and coerces the response. The final agent
// must yield a scene object with an image prompt; other agents always
// produce payloads, degrading to raw text when needed.
func (e *AgentExecutor) Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResult, error) {
	agent := req.Agent
	completion, err := e.callAttempt(ctx, agent, req.Scene, req.Prompt, req.Final, req.Attempt)
	if err != nil {
		return nil, err
	}
	logger := e.logger.WithContext(ctx).WithScene(req.Scene.Index, req.Scene.Purpose).WithAgent(agent.ID, agent.Role)

	if req.Final {
		obj, path, ok := CoerceFinal(completion.Text)
		if !ok {
			logger.Error("final agent returned no scene", "path", string(path), "response_chars", len(completion.Text))
			return nil, core.ErrFinalAgentOutputMissing(agent.ID, req.Scene.Index).
				WithDetail("response_chars", len(completion.Text))
		}
		logger.Debug("final agent assembled scene", "path", string(path))
		return &ExecuteResult{
			Coercion: &Coercion{
				Payloads: distribute(obj, obj, agent.OutputKeys()),
				Object:   obj,
				Path:     path,
			},
			Completion: completion,
		}, nil
	}

	coercion := CoerceResponse(completion.Text, agent.OutputKeys())
	if coercion.Degraded() {
		for _, key := range agent.OutputKeys() {
			e.degrade(logger, Degradation{Scene: req.Scene, AgentID: agent.ID, Key: key, Reason: "response is not JSON; stored as raw text"})
		}
	}
	for _, d := range e.schemas[agent.ID].ValidateCoercion(coercion) {
		d.Scene = req.Scene
		d.AgentID = agent.ID
		e.degrade(logger, d)
	}

	logger.Debug("agent completed", "path", string(coercion.Path), "tokens_out", completion.TokensOut)
	return &ExecuteResult{Coercion: coercion, Completion: completion}, nil
}

// call performs a bare model call for agent, without coercion.
func (e *AgentExecutor) call(ctx context.Context, agent core.AgentDefinition, scene core.SceneInfo, prompt core.CompletionRequest) (*core.CompletionResult, error) {
	return e.callAttempt(ctx, agent, scene, prompt, false, 0)
}

// callAttempt wraps one model call in a span, applies the per-call timeout
// and reports the invocation to the observer. Model failures are returned as
// agent invocation errors and expiry of the per-call timeout as an agent
// timeout.
func (e *AgentExecutor) callAttempt(ctx context.Context, agent core.AgentDefinition, scene core.SceneInfo, prompt core.CompletionRequest, final bool, attempt int) (completion *core.CompletionResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "agent.execute",
		tracing.StringAttr("agent.id", agent.ID),
		tracing.StringAttr("agent.role", agent.Role),
		tracing.IntAttr("scene.index", scene.Index),
		tracing.BoolAttr("agent.final", final),
		tracing.IntAttr("attempt", attempt),
	)
	logger := e.logger.WithContext(ctx).WithScene(scene.Index, scene.Purpose).WithAgent(agent.ID, agent.Role)

	start := time.Now()
	defer func() {
		event := AgentEvent{
			Scene:    scene,
			AgentID:  agent.ID,
			Role:     agent.Role,
			Final:    final,
			Attempt:  attempt,
			Duration: time.Since(start),
			Err:      err,
		}
		if completion != nil {
			event.TokensIn = completion.TokensIn
			event.TokensOut = completion.TokensOut
		}
		e.observer.AgentCompleted(event)
		tracing.End(span, err)
	}()

	callCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	if prompt.MaxTokens == 0 {
		prompt.MaxTokens = e.maxTokens
	}

	entry := service.TranscriptEvent{
		Scene:   scene.Index,
		Purpose: scene.Purpose,
		Agent:   agent.ID,
		Role:    agent.Role,
		Attempt: attempt,
		Model:   e.model.Name(),
	}
	e.record(entry, service.TranscriptPrompt, prompt.Prompt(), nil)

	logger.Debug("invoking agent", "attempt", attempt, "prompt_chars", len(prompt.SystemPrompt)+len(prompt.UserPrompt))
	completion, err = e.model.Complete(callCtx, prompt)
	if err != nil {
		err = e.classify(ctx, callCtx, agent.ID, err)
		logger.Error("agent invocation failed", "error", err)
		e.record(entry, service.TranscriptError, err.Error(), nil)
		return nil, err
	}
	e.record(entry, service.TranscriptResponse, completion.Text, completion)
	return completion, nil
}

func (e *AgentExecutor) record(entry service.TranscriptEvent, kind, content string, completion *core.CompletionResult) {
	if !e.transcript.Enabled() {
		return
	}
	entry.Type = kind
	entry.Content = content
	if completion != nil {
		entry.TokensIn = completion.TokensIn
		entry.TokensOut = completion.TokensOut
		if completion.Model != "" {
			entry.Model = completion.Model
		}
	}
	e.transcript.Record(entry)
}

func (e *AgentExecutor) degrade(logger *logging.Logger, d Degradation) {
	logger.Warn("response coercion degraded", "key", d.Key, "reason", d.Reason)
	e.observer.Degraded(d)
}

// classify maps a model error onto the domain taxonomy. Cancellation by the
// caller is returned unchanged.
func (e *AgentExecutor) classify(ctx, callCtx context.Context, agentID string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return core.ErrAgentTimeout(agentID).
			WithDetail("timeout", e.timeout.String()).
			WithCause(err)
	}
	var de *core.DomainError
	if errors.As(err, &de) {
		return err
	}
	return core.ErrAgentInvocation(agentID, err.Error()).WithCause(err)
}
