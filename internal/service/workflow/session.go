package workflow

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/core"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/logging"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/service"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/tracing"
)

// defaultPolicyRetries regenerates a violating scene once.
const defaultPolicyRetries = 1

// GenerationRequest is one call to Generate.
type GenerationRequest struct {
	ContentType *core.ContentTypeDefinition
	Inputs      core.Inputs
	// Continuity feeds a summary of earlier scenes into later prompts.
	Continuity bool
}

// GenerationResult is the outcome of a session.
type GenerationResult struct {
	SessionID     string                `json:"sessionId"`
	ContentType   string                `json:"contentType"`
	Strategy      string                `json:"strategy"`
	Plan          []core.SceneInfo      `json:"plan"`
	Scenes        []core.GeneratedScene `json:"scenes"`
	RenderingSpec core.RenderingSpec    `json:"renderingSpec"`
}

// GenerationSession turns a content type and inputs into an ordered list of
// scenes. One session runs one generation at a time.
type GenerationSession struct {
	model         core.Model
	renderer      *service.PromptRenderer
	logger        *logging.Logger
	observer      Observer
	agentTimeout  time.Duration
	maxTokens     int
	policyRetries int
	retryDelay    time.Duration
	history       *SessionContext
	transcript    service.TranscriptWriter

	mu sync.Mutex
}

// SessionOption configures a GenerationSession.
type SessionOption func(*GenerationSession)

// WithLogger sets the session logger.
func WithLogger(logger *logging.Logger) SessionOption {
	return func(s *GenerationSession) {
		s.logger = logger
	}
}

// WithObserver sets the observer notified of scene and agent events.
func WithObserver(observer Observer) SessionOption {
	return func(s *GenerationSession) {
		s.observer = observer
	}
}

// WithAgentTimeout bounds every model call.
func WithAgentTimeout(d time.Duration) SessionOption {
	return func(s *GenerationSession) {
		s.agentTimeout = d
	}
}

// WithMaxTokens sets the completion ceiling of every model call.
func WithMaxTokens(n int) SessionOption {
	return func(s *GenerationSession) {
		s.maxTokens = n
	}
}

// WithPolicyRetries sets how many times a scene violating the banned
// vocabulary is regenerated. Zero disables regeneration.
func WithPolicyRetries(n int) SessionOption {
	return func(s *GenerationSession) {
		s.policyRetries = max(n, 0)
	}
}

// WithRetryDelay waits before each regeneration.
func WithRetryDelay(d time.Duration) SessionOption {
	return func(s *GenerationSession) {
		s.retryDelay = d
	}
}

// WithRenderer replaces the embedded prompt templates.
func WithRenderer(r *service.PromptRenderer) SessionOption {
	return func(s *GenerationSession) {
		s.renderer = r
	}
}

// WithSessionContext shares a session context with the caller, which can
// then inspect the plan and history after Generate returns.
func WithSessionContext(c *SessionContext) SessionOption {
	return func(s *GenerationSession) {
		s.history = c
	}
}

// WithTranscript records every model prompt and response of a generation.
func WithTranscript(w service.TranscriptWriter) SessionOption {
	return func(s *GenerationSession) {
		s.transcript = w
	}
}

// NewGenerationSession creates a session generating with model.
func NewGenerationSession(model core.Model, opts ...SessionOption) (*GenerationSession, error) {
	s := &GenerationSession{
		model:         model,
		logger:        logging.NewNop(),
		observer:      NopObserver{},
		transcript:    service.NopTranscript{},
		policyRetries: defaultPolicyRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.renderer == nil {
		r, err := service.NewPromptRenderer()
		if err != nil {
			return nil, err
		}
		s.renderer = r
	}
	if s.history == nil {
		s.history = NewSessionContext()
	}
	return s, nil
}

// Context returns the session context of the last generation.
func (s *GenerationSession) Context() *SessionContext {
	return s.history
}

// run carries everything one Generate call resolved up front.
type run struct {
	id         string
	ct         *core.ContentTypeDefinition
	inputs     core.Inputs
	policy     core.ScenePolicy
	contract   core.OutputContract
	rendering  core.RenderingSpec
	continuity bool
	executor   *AgentExecutor
	enforcer   *OutputEnforcer
	retry      *service.RetryPolicy
	logger     *logging.Logger
}

// Generate plans the scenes, produces each in order and returns them with
// the session rendering spec. Any fatal error aborts the whole session; no
// partial scene list is returned.
func (s *GenerationSession) Generate(ctx context.Context, req GenerationRequest) (result *GenerationResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.ContentType == nil {
		return nil, core.ErrConfiguration(core.CodeInvalidConfig, "content type is required")
	}
	ct := req.ContentType

	inputs := req.Inputs.Normalize()
	if err := inputs.Validate(); err != nil {
		return nil, err
	}

	policy := ct.Policy
	policy.Purposes = slices.Clone(policy.Purposes)
	policy.ApplyDefaults()
	contract := ct.Contract
	contract.CameraPresets = slices.Clone(contract.CameraPresets)
	contract.BannedTerms = slices.Clone(contract.BannedTerms)
	contract.ShotLibrary = slices.Clone(contract.ShotLibrary)
	contract.ApplyDefaults()

	scan, err := service.NewBannedTermScan(contract.BannedTerms)
	if err != nil {
		return nil, core.ErrConfiguration(core.CodeInvalidConfig, err.Error()).WithCause(err)
	}

	r := &run{
		id:         uuid.New().String(),
		ct:         ct,
		inputs:     inputs,
		policy:     policy,
		contract:   contract,
		continuity: req.Continuity,
		enforcer:   NewOutputEnforcer(contract, policy),
		retry: service.NewRetryPolicy(scan,
			service.WithMaxAttempts(s.policyRetries),
			service.WithBaseDelay(s.retryDelay),
		),
	}
	r.logger = s.logger.WithSession(r.id)

	strategy := ct.Strategy
	if strategy == "" {
		strategy = core.StrategyWorkflow
	}

	var orchestrator *WorkflowOrchestrator
	switch strategy {
	case core.StrategyWorkflow:
		orchestrator, err = s.prepareWorkflow(r)
		if err != nil {
			return nil, err
		}
	case core.StrategySinglePrompt:
		r.executor = s.newExecutor(r, nil)
	default:
		return nil, core.ErrConfiguration(core.CodeInvalidConfig,
			fmt.Sprintf("unknown generation strategy %q", ct.Strategy))
	}

	ctx, span := tracing.StartSpan(ctx, "session.generate",
		tracing.StringAttr("session.id", r.id),
		tracing.StringAttr("content_type", ct.ID),
		tracing.StringAttr("strategy", strategy),
	)
	defer func() { tracing.End(span, err) }()

	if err := s.transcript.StartSession(service.TranscriptSession{
		SessionID:   r.id,
		ContentType: ct.ID,
		Strategy:    strategy,
		Model:       s.model.Name(),
		StartedAt:   time.Now().UTC(),
	}); err != nil {
		r.logger.Warn("transcript unavailable", "error", err)
	}
	defer s.transcript.EndSession()

	s.history.Reset()
	r.rendering = BuildRenderingSpec(inputs, ct.Rendering)

	logger := r.logger.WithContext(ctx)
	logger.Info("generation started", "content_type", ct.ID, "strategy", strategy)
	start := time.Now()

	planner := NewScenePlanner(r.executor, s.renderer, r.logger)
	plan, err := planner.Plan(ctx, inputs, policy)
	if err != nil {
		return nil, err
	}
	s.history.RecordPlan(plan)

	var scenes []core.GeneratedScene
	if strategy == core.StrategySinglePrompt {
		scenes, err = s.runSinglePrompt(ctx, r, plan)
	} else {
		scenes, err = s.runWorkflow(ctx, r, orchestrator, plan)
	}
	if err != nil {
		logger.Error("generation failed", "error", err)
		return nil, err
	}

	if err := ValidateIndices(scenes); err != nil {
		return nil, err
	}

	logger.Info("generation completed", "scenes", len(scenes), "duration", time.Since(start))
	return &GenerationResult{
		SessionID:     r.id,
		ContentType:   ct.ID,
		Strategy:      strategy,
		Plan:          plan,
		Scenes:        scenes,
		RenderingSpec: r.rendering,
	}, nil
}

// prepareWorkflow normalizes a copy of the content type's workflow and
// builds its orchestrator, so configuration errors surface before the
// planner spends a model call.
func (s *GenerationSession) prepareWorkflow(r *run) (*WorkflowOrchestrator, error) {
	if len(r.ct.Workflow.Agents) == 0 {
		return nil, core.ErrNoWorkflowConfigured(r.ct.ID)
	}
	w := r.ct.Workflow
	w.Agents = slices.Clone(w.Agents)
	if err := w.Normalize(); err != nil {
		return nil, err
	}

	schemas, err := CompileSchemas(&w)
	if err != nil {
		return nil, err
	}
	r.executor = s.newExecutor(r, schemas)

	return NewWorkflowOrchestrator(&w, OrchestratorDeps{
		Executor:  r.executor,
		Assembler: NewPromptAssembler(s.renderer, r.contract, r.policy),
		Enforcer:  r.enforcer,
		Retry:     r.retry,
		Logger:    r.logger,
		Observer:  s.observer,
	})
}

func (s *GenerationSession) newExecutor(r *run, schemas map[string]SchemaSet) *AgentExecutor {
	return NewAgentExecutor(s.model, ExecutorConfig{
		Timeout:    s.agentTimeout,
		MaxTokens:  s.maxTokens,
		Schemas:    schemas,
		Logger:     r.logger,
		Observer:   s.observer,
		Transcript: s.transcript,
	})
}

// runWorkflow produces the planned scenes one at a time.
func (s *GenerationSession) runWorkflow(ctx context.Context, r *run, o *WorkflowOrchestrator, plan []core.SceneInfo) ([]core.GeneratedScene, error) {
	scenes := make([]core.GeneratedScene, 0, len(plan))
	for _, info := range plan {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		s.observer.SceneStarted(info)
		var history []string
		if r.continuity {
			history = s.history.History()
		}

		scene, err := o.RunScene(ctx, SceneRequest{
			Scene:      info,
			SceneCount: len(plan),
			Input:      seedInput(r, info, len(plan)),
			History:    history,
		})
		s.observer.SceneCompleted(info, scene, err)
		if err != nil {
			return nil, err
		}

		r.logger.WithContext(ctx).WithScene(info.Index, info.Purpose).Info("scene generated",
			"camera", scene.Camera,
			"agents", len(scene.AgentContributions),
		)
		s.history.RecordScene(*scene)
		scenes = append(scenes, *scene)
	}
	return scenes, nil
}

// seedInput is the "input" entry of a scene's shared state: the user inputs
// plus the scene brief and the limits agents must respect.
func seedInput(r *run, info core.SceneInfo, count int) map[string]any {
	input := r.inputs.Map()
	scene := map[string]any{
		"index":   info.Index,
		"purpose": info.Purpose,
		"count":   count,
	}
	if info.ExecutionInput != "" {
		scene["executionInput"] = info.ExecutionInput
	}
	input["scene"] = scene
	input["limits"] = map[string]any{
		"imagePromptMaxChars":     r.contract.ImagePromptMaxChars,
		"maxSentencesImagePrompt": r.contract.MaxSentencesImagePrompt,
		"negativesMaxChars":       r.contract.NegativesMaxChars,
		"maxWordsOnScreenText":    r.contract.MaxWordsOnScreenText,
	}
	input["cameraPresets"] = slices.Clone(r.contract.CameraPresets)
	if len(r.contract.ShotLibrary) > 0 {
		input["shotLibrary"] = slices.Clone(r.contract.ShotLibrary)
	}
	input["rendering"] = r.rendering
	return input
}
