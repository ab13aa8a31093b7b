package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/core"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/service"
)

// PromptAssembler builds the system and task prompts of an agent call.
type PromptAssembler struct {
	renderer *service.PromptRenderer
	contract core.OutputContract
	policy   core.ScenePolicy
}

// NewPromptAssembler creates an assembler for one content type. The
// contract and policy are expected to have their defaults applied.
func NewPromptAssembler(renderer *service.PromptRenderer, contract core.OutputContract, policy core.ScenePolicy) *PromptAssembler {
	return &PromptAssembler{renderer: renderer, contract: contract, policy: policy}
}

// AssembleParams describes one agent call.
type AssembleParams struct {
	Agent       core.AgentDefinition
	State       core.SharedState
	Scene       core.SceneInfo
	SceneCount  int
	Final       bool
	Mode        core.ExecutionOrder
	History     []string
	Constraints []string
}

// Assemble renders the completion request for an agent. Temperature comes
// from the agent definition.
func (a *PromptAssembler) Assemble(p AssembleParams) (core.CompletionRequest, error) {
	state, err := json.MarshalIndent(p.State, "", "  ")
	if err != nil {
		return core.CompletionRequest{}, fmt.Errorf("encoding shared state: %w", err)
	}

	var task string
	if p.Final {
		task, err = a.renderer.RenderFinalAssembly(service.FinalAssemblyParams{
			Instructions:  p.Agent.Prompt,
			Scene:         p.Scene,
			SceneCount:    p.SceneCount,
			State:         string(state),
			Contract:      a.contract,
			OpeningType:   a.policy.OpeningType,
			StrongOpening: a.policy.MustStartStrong && p.Scene.Index == 1,
			Closing:       a.policy.MustEndWithClosure && p.Scene.Index == p.SceneCount && p.SceneCount > 1,
			Constraints:   p.Constraints,
			History:       p.History,
		})
	} else {
		task, err = a.renderer.RenderAgentTask(service.AgentTaskParams{
			Instructions: p.Agent.Prompt,
			Role:         p.Agent.Role,
			Scene:        p.Scene,
			SceneCount:   p.SceneCount,
			OutputKeys:   p.Agent.OutputKeys(),
			State:        string(state),
			ExtendDraft:  p.Mode == core.ExecutionSequential && len(p.State) > 1,
			History:      p.History,
		})
	}
	if err != nil {
		return core.CompletionRequest{}, fmt.Errorf("rendering prompt for agent %s: %w", p.Agent.ID, err)
	}

	return core.CompletionRequest{
		SystemPrompt: SystemPrompt(p.Agent),
		UserPrompt:   task,
		Temperature:  p.Agent.Temperature,
	}, nil
}

// SystemPrompt resolves the system portion of an agent's prompt: its own
// override, else the built-in prompt for its role, else a generic expert
// persona. It is never empty.
func SystemPrompt(agent core.AgentDefinition) string {
	if s := strings.TrimSpace(agent.SystemPrompt); s != "" {
		return s
	}
	if rp, ok := service.LookupRolePrompt(agent.Role); ok {
		return rp.Content
	}
	role := strings.TrimSpace(agent.Role)
	if role == "" {
		role = agent.ID
	}
	if role == "" {
		role = "creative advertising"
	}
	return fmt.Sprintf("You are an expert in %s.", role)
}
