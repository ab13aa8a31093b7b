package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/core"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/logging"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/service"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/tracing"
)

// WorkflowOrchestrator runs every agent of a workflow once per scene and
// turns the final agent's output into an enforced scene.
type WorkflowOrchestrator struct {
	workflow  *core.AgentWorkflow
	final     core.AgentDefinition
	executor  *AgentExecutor
	assembler *PromptAssembler
	enforcer  *OutputEnforcer
	retry     *service.RetryPolicy
	logger    *logging.Logger
	observer  Observer

	// Custom mode only.
	order   []string
	visible map[string][]string
}

// OrchestratorDeps are the collaborators of a WorkflowOrchestrator.
type OrchestratorDeps struct {
	Executor  *AgentExecutor
	Assembler *PromptAssembler
	Enforcer  *OutputEnforcer
	Retry     *service.RetryPolicy
	Logger    *logging.Logger
	Observer  Observer
}

// NewWorkflowOrchestrator prepares a normalized workflow for execution.
// Custom mode resolves its dependency graph here, so cycles and dangling
// references fail before any model call.
func NewWorkflowOrchestrator(w *core.AgentWorkflow, deps OrchestratorDeps) (*WorkflowOrchestrator, error) {
	final, err := w.FinalAgent()
	if err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	if deps.Observer == nil {
		deps.Observer = NopObserver{}
	}

	o := &WorkflowOrchestrator{
		workflow:  w,
		final:     final,
		executor:  deps.Executor,
		assembler: deps.Assembler,
		enforcer:  deps.Enforcer,
		retry:     deps.Retry,
		logger:    deps.Logger,
		observer:  deps.Observer,
	}

	if w.ExecutionOrder == core.ExecutionCustom {
		if err := o.planCustom(); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// planCustom fixes the execution order and the state keys each agent may
// see: exactly the keys it reads, or in the legacy shape the keys written
// by the agents it depends on.
func (o *WorkflowOrchestrator) planCustom() error {
	order, err := service.PlanCustomOrder(o.workflow)
	if err != nil {
		return err
	}
	graph, err := service.BuildAgentGraph(o.workflow)
	if err != nil {
		return err
	}

	o.order = order
	o.visible = make(map[string][]string, len(order))
	for _, a := range o.workflow.Agents {
		if o.workflow.Shape == core.ShapeCurrent {
			o.visible[a.ID] = a.ReadsFrom
			continue
		}
		var keys []string
		for _, dep := range graph.Dependencies(a.ID) {
			if d, ok := o.workflow.Agent(dep); ok {
				keys = append(keys, d.OutputKeys()...)
			}
		}
		o.visible[a.ID] = keys
	}
	return nil
}

// SceneRequest is one scene to generate.
type SceneRequest struct {
	Scene      core.SceneInfo
	SceneCount int
	Input      map[string]any
	History    []string
}

// RunScene executes the workflow for one scene. Any agent failure aborts the
// scene.
func (o *WorkflowOrchestrator) RunScene(ctx context.Context, req SceneRequest) (scene *core.GeneratedScene, err error) {
	ctx, span := tracing.StartSpan(ctx, "scene.run",
		tracing.IntAttr("scene.index", req.Scene.Index),
		tracing.StringAttr("scene.purpose", req.Scene.Purpose),
		tracing.StringAttr("workflow.mode", string(o.workflow.ExecutionOrder)),
	)
	defer func() { tracing.End(span, err) }()

	state := core.NewSharedState(req.Input)

	var contributions []core.AgentContribution
	switch o.workflow.ExecutionOrder {
	case core.ExecutionParallel:
		contributions, err = o.runParallel(ctx, req, state)
	case core.ExecutionCustom:
		contributions, err = o.runCustom(ctx, req, state)
	default:
		contributions, err = o.runSequential(ctx, req, state)
	}
	if err != nil {
		return nil, err
	}

	finalState := state
	if o.workflow.ExecutionOrder == core.ExecutionCustom && len(o.visible[o.final.ID]) > 0 {
		finalState = state.Restrict(o.visible[o.final.ID])
	}

	scene, finalContribution, err := o.runFinal(ctx, req, finalState)
	if err != nil {
		return nil, err
	}
	scene.AgentContributions = append(contributions, *finalContribution)
	return scene, nil
}

// runSequential runs agents in ascending order; each sees every earlier
// output.
func (o *WorkflowOrchestrator) runSequential(ctx context.Context, req SceneRequest, state core.SharedState) ([]core.AgentContribution, error) {
	agents := o.workflow.RegularAgents()
	contributions := make([]core.AgentContribution, 0, len(agents)+1)
	for _, agent := range agents {
		c, err := o.runAgent(ctx, req, agent, state.Clone())
		if err != nil {
			return nil, err
		}
		state.Merge(c.payloads)
		contributions = append(contributions, c.contribution)
	}
	return contributions, nil
}

// runParallel runs every non-final agent concurrently against the same
// initial state and merges their outputs in order once all have finished.
func (o *WorkflowOrchestrator) runParallel(ctx context.Context, req SceneRequest, state core.SharedState) ([]core.AgentContribution, error) {
	agents := o.workflow.RegularAgents()
	results := make([]*agentRun, len(agents))
	initial := state.Clone()

	g, gctx := errgroup.WithContext(ctx)
	for i, agent := range agents {
		g.Go(func() error {
			run, err := o.runAgent(gctx, req, agent, initial)
			if err != nil {
				return err
			}
			results[i] = run
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	contributions := make([]core.AgentContribution, 0, len(agents)+1)
	for _, run := range results {
		state.Merge(run.payloads)
		contributions = append(contributions, run.contribution)
	}
	return contributions, nil
}

// runCustom runs non-final agents in dependency order; each sees the input
// and the keys it declares.
func (o *WorkflowOrchestrator) runCustom(ctx context.Context, req SceneRequest, state core.SharedState) ([]core.AgentContribution, error) {
	contributions := make([]core.AgentContribution, 0, len(o.order))
	for _, id := range o.order {
		if id == o.final.ID {
			continue
		}
		agent, _ := o.workflow.Agent(id)
		c, err := o.runAgent(ctx, req, agent, state.Restrict(o.visible[id]))
		if err != nil {
			return nil, err
		}
		state.Merge(c.payloads)
		contributions = append(contributions, c.contribution)
	}
	return contributions, nil
}

type agentRun struct {
	payloads     map[string]core.Payload
	contribution core.AgentContribution
}

func (o *WorkflowOrchestrator) runAgent(ctx context.Context, req SceneRequest, agent core.AgentDefinition, visible core.SharedState) (*agentRun, error) {
	prompt, err := o.assembler.Assemble(AssembleParams{
		Agent:      agent,
		State:      visible,
		Scene:      req.Scene,
		SceneCount: req.SceneCount,
		Mode:       o.workflow.ExecutionOrder,
		History:    req.History,
	})
	if err != nil {
		return nil, err
	}

	res, err := o.executor.Execute(ctx, ExecuteRequest{Agent: agent, Scene: req.Scene, Prompt: prompt})
	if err != nil {
		return nil, err
	}
	return &agentRun{
		payloads:     res.Coercion.Payloads,
		contribution: contribution(agent, visible, res.Coercion, 0),
	}, nil
}

// runFinal runs the final agent under the retry policy. Each attempt is
// enforced before the policy's trigger inspects it; the contribution of the
// accepted attempt replaces earlier ones.
func (o *WorkflowOrchestrator) runFinal(ctx context.Context, req SceneRequest, state core.SharedState) (*core.GeneratedScene, *core.AgentContribution, error) {
	var last *core.AgentContribution

	scene, err := o.retry.Execute(ctx, func(ctx context.Context, attempt int, violations []string) (*core.GeneratedScene, error) {
		prompt, err := o.assembler.Assemble(AssembleParams{
			Agent:       o.final,
			State:       state,
			Scene:       req.Scene,
			SceneCount:  req.SceneCount,
			Final:       true,
			Mode:        o.workflow.ExecutionOrder,
			History:     req.History,
			Constraints: retryConstraints(violations),
		})
		if err != nil {
			return nil, err
		}

		res, err := o.executor.Execute(ctx, ExecuteRequest{
			Agent:   o.final,
			Scene:   req.Scene,
			Prompt:  prompt,
			Final:   true,
			Attempt: attempt,
		})
		if err != nil {
			return nil, err
		}

		scene := sceneFromObject(res.Coercion.Object, req.Scene)
		o.enforcer.Enforce(scene)
		c := contribution(o.final, state, res.Coercion, attempt)
		last = &c
		return scene, nil
	}, func(attempt int, violations []string, delay time.Duration) {
		signal := core.ErrContentPolicyViolation(req.Scene.Index, violations)
		o.logger.WithContext(ctx).WithScene(req.Scene.Index, req.Scene.Purpose).Warn("regenerating scene",
			"attempt", attempt,
			"violation", signal.Error(),
			"delay", delay,
		)
		o.observer.RetryTriggered(req.Scene, attempt, violations)
	})
	if err != nil {
		return nil, nil, err
	}
	return scene, last, nil
}

// retryConstraints turns trigger findings into an extra instruction for the
// regenerated attempt.
func retryConstraints(violations []string) []string {
	if len(violations) == 0 {
		return nil
	}
	quoted := make([]string, len(violations))
	for i, v := range violations {
		if expr, ok := strings.CutPrefix(v, "re:"); ok {
			quoted[i] = "text matching /" + expr + "/"
			continue
		}
		quoted[i] = fmt.Sprintf("%q", v)
	}
	return []string{
		"No video language: this is a single still image. Do not use " + strings.Join(quoted, ", ") +
			" or any other camera movement, editing or transition vocabulary.",
	}
}

func contribution(agent core.AgentDefinition, visible core.SharedState, c *Coercion, attempt int) core.AgentContribution {
	return core.AgentContribution{
		AgentID:      agent.ID,
		AgentName:    agent.DisplayName(),
		AgentRole:    agent.Role,
		Order:        agent.Order,
		Input:        visible.Snapshot(),
		Output:       c.Output(),
		Attempt:      attempt,
		CoercionPath: string(c.Path),
	}
}
