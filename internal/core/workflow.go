package core

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
)

// ExecutionOrder governs state visibility and call ordering among agents.
type ExecutionOrder string

const (
	ExecutionSequential ExecutionOrder = "sequential"
	ExecutionParallel   ExecutionOrder = "parallel"
	ExecutionCustom     ExecutionOrder = "custom"
)

// Valid reports whether the execution order is one of the known modes.
func (e ExecutionOrder) Valid() bool {
	switch e {
	case ExecutionSequential, ExecutionParallel, ExecutionCustom:
		return true
	}
	return false
}

// DependencyShape records which dependency vocabulary a workflow uses.
type DependencyShape string

const (
	// ShapeLegacy uses inputFrom/outputTo agent-id references.
	ShapeLegacy DependencyShape = "legacy"
	// ShapeCurrent uses readsFrom/writesTo shared-state keys.
	ShapeCurrent DependencyShape = "current"
)

// DefaultTemperature is applied by content-type loading when an agent
// declares none. Normalize keeps an explicit zero.
const DefaultTemperature = 0.7

// MaxTemperature is the upper bound accepted for agent temperature.
const MaxTemperature = 2.0

// AgentDefinition describes one role-scoped LLM step within a workflow.
type AgentDefinition struct {
	ID           string  `json:"id"`
	Role         string  `json:"role"`
	Name         string  `json:"name,omitempty"`
	SystemPrompt string  `json:"systemPrompt,omitempty"`
	Prompt       string  `json:"prompt,omitempty"`
	Temperature  float64 `json:"temperature"` // 0 is an explicit zero; loaders apply DefaultTemperature
	Order        int     `json:"order"`

	// Legacy dependency shape: agent ids.
	InputFrom []string `json:"inputFrom,omitempty"`
	OutputTo  []string `json:"outputTo,omitempty"`

	// Current dependency shape: shared-state keys.
	ReadsFrom []string `json:"readsFrom,omitempty"`
	WritesTo  []string `json:"writesTo,omitempty"`

	// Final marks the agent that assembles the scene.
	Final bool `json:"final,omitempty"`

	// OutputSchemas maps a writesTo key to a JSON Schema document the
	// agent's value for that key must satisfy.
	OutputSchemas map[string]json.RawMessage `json:"outputSchemas,omitempty"`
}

// DisplayName returns the agent name, falling back to its id.
func (a AgentDefinition) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return a.ID
}

// OutputKeys returns the shared-state keys the agent writes to.
func (a AgentDefinition) OutputKeys() []string {
	if len(a.WritesTo) > 0 {
		return a.WritesTo
	}
	return []string{a.ID}
}

// ReadKeys returns the shared-state keys the agent declares it reads.
// Legacy inputFrom references resolve to agent ids, which are also the
// keys those agents write under.
func (a AgentDefinition) ReadKeys(shape DependencyShape) []string {
	if shape == ShapeCurrent {
		return a.ReadsFrom
	}
	return a.InputFrom
}

// hasAssemblerMarker reports whether the role, name or writesTo keys mark
// the agent as the scene assembler.
func (a AgentDefinition) hasAssemblerMarker() bool {
	markers := []string{"assembler", "final", "synthesizer", "synthesiser"}
	role := strings.ToLower(a.Role)
	name := strings.ToLower(a.Name)
	for _, m := range markers {
		if strings.Contains(role, m) || strings.Contains(name, m) {
			return true
		}
	}
	for _, key := range a.WritesTo {
		switch strings.ToLower(key) {
		case "scene", "final_scene", "finalscene":
			return true
		}
	}
	return false
}

// AgentWorkflow is the canonical, validated form of an agent pipeline.
type AgentWorkflow struct {
	ExecutionOrder ExecutionOrder    `json:"executionOrder"`
	Agents         []AgentDefinition `json:"agents"`
	Shape          DependencyShape   `json:"shape"`
	FinalAgentID   string            `json:"finalAgentId"`
}

// Normalize validates the workflow and resolves defaults, ordering, the
// dependency shape and the final agent. It is called once at load time.
func (w *AgentWorkflow) Normalize() error {
	if len(w.Agents) == 0 {
		return ErrConfiguration(CodeNoWorkflow, "workflow has no agents")
	}

	if w.ExecutionOrder == "" {
		w.ExecutionOrder = ExecutionSequential
	}
	if !w.ExecutionOrder.Valid() {
		return ErrConfiguration(CodeInvalidWorkflow,
			fmt.Sprintf("unknown execution order %q", w.ExecutionOrder))
	}

	allZeroOrder := true
	for _, a := range w.Agents {
		if a.Order != 0 {
			allZeroOrder = false
			break
		}
	}

	seen := make(map[string]bool, len(w.Agents))
	for i := range w.Agents {
		a := &w.Agents[i]
		a.ID = strings.TrimSpace(a.ID)
		if a.ID == "" {
			a.ID = fmt.Sprintf("agent-%d", i+1)
		}
		if seen[a.ID] {
			return ErrConfiguration(CodeInvalidWorkflow,
				fmt.Sprintf("duplicate agent id %q", a.ID))
		}
		seen[a.ID] = true

		if a.Role == "" {
			a.Role = a.ID
		}
		if a.Temperature < 0 {
			a.Temperature = 0
		}
		if a.Temperature > MaxTemperature {
			a.Temperature = MaxTemperature
		}
		if allZeroOrder {
			a.Order = i + 1
		}
		for _, key := range a.WritesTo {
			if key == InputKey {
				return ErrConfiguration(CodeInvalidWorkflow,
					fmt.Sprintf("agent %q writes to reserved key %q", a.ID, InputKey))
			}
		}
	}

	sort.SliceStable(w.Agents, func(i, j int) bool {
		return w.Agents[i].Order < w.Agents[j].Order
	})

	w.Shape = ShapeLegacy
	for _, a := range w.Agents {
		if len(a.ReadsFrom) > 0 || len(a.WritesTo) > 0 {
			w.Shape = ShapeCurrent
			break
		}
	}

	finalID, err := resolveFinalAgent(w.Agents)
	if err != nil {
		return err
	}
	w.FinalAgentID = finalID
	w.moveFinalLast()
	return nil
}

// moveFinalLast places the final agent after every other agent and bumps its
// order past theirs, so runs and contributions stay in ascending order.
func (w *AgentWorkflow) moveFinalLast() {
	last := len(w.Agents) - 1
	idx := slices.IndexFunc(w.Agents, func(a AgentDefinition) bool { return a.ID == w.FinalAgentID })
	if idx < 0 || idx == last {
		return
	}
	final := w.Agents[idx]
	w.Agents = append(w.Agents[:idx], w.Agents[idx+1:]...)
	if top := w.Agents[len(w.Agents)-1].Order; final.Order <= top {
		final.Order = top + 1
	}
	w.Agents = append(w.Agents, final)
}

func resolveFinalAgent(agents []AgentDefinition) (string, error) {
	explicit := ""
	for _, a := range agents {
		if !a.Final {
			continue
		}
		if explicit != "" {
			return "", ErrConfiguration(CodeInvalidWorkflow,
				fmt.Sprintf("agents %q and %q are both marked final", explicit, a.ID))
		}
		explicit = a.ID
	}
	if explicit != "" {
		return explicit, nil
	}

	// Agents are sorted by order, so the last marker wins.
	marked := ""
	for _, a := range agents {
		if a.hasAssemblerMarker() {
			marked = a.ID
		}
	}
	if marked != "" {
		return marked, nil
	}
	if len(agents) == 0 {
		return "", ErrConfiguration(CodeNoFinalAgent, "workflow has no final agent")
	}
	return agents[len(agents)-1].ID, nil
}

// FinalAgent returns the agent whose output becomes the scene.
func (w *AgentWorkflow) FinalAgent() (AgentDefinition, error) {
	for _, a := range w.Agents {
		if a.ID == w.FinalAgentID {
			return a, nil
		}
	}
	return AgentDefinition{}, ErrConfiguration(CodeNoFinalAgent, "workflow has no final agent")
}

// RegularAgents returns every non-final agent in ascending order.
func (w *AgentWorkflow) RegularAgents() []AgentDefinition {
	out := make([]AgentDefinition, 0, len(w.Agents))
	for _, a := range w.Agents {
		if a.ID != w.FinalAgentID {
			out = append(out, a)
		}
	}
	return out
}

// Agent looks up an agent by id.
func (w *AgentWorkflow) Agent(id string) (AgentDefinition, bool) {
	for _, a := range w.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return AgentDefinition{}, false
}

// SceneInfo is one entry of the scene plan.
type SceneInfo struct {
	Index          int    `json:"index"`
	Purpose        string `json:"purpose"`
	ExecutionInput string `json:"execution_input,omitempty"`
}

// AgentContribution records one executed agent for assembly and audit.
type AgentContribution struct {
	AgentID      string         `json:"agentId"`
	AgentName    string         `json:"agentName"`
	AgentRole    string         `json:"agentRole"`
	Order        int            `json:"order"`
	Input        map[string]any `json:"input"`
	Output       map[string]any `json:"output"`
	Attempt      int            `json:"attempt"`
	CoercionPath string         `json:"coercionPath"`
}

// GeneratedScene is one unit of creative output.
type GeneratedScene struct {
	Index              int                 `json:"index"`
	Purpose            string              `json:"purpose"`
	ShotType           string              `json:"shotType"`
	ImagePrompt        string              `json:"imagePrompt"`
	NegativePrompt     string              `json:"negativePrompt,omitempty"`
	Camera             string              `json:"camera"`
	Environment        string              `json:"environment,omitempty"`
	OnScreenText       string              `json:"onScreenText,omitempty"`
	CompositionNotes   string              `json:"compositionNotes,omitempty"`
	AgentContributions []AgentContribution `json:"agentContributions"`
}

// RenderingSpec describes how every scene of a session should be rendered.
type RenderingSpec struct {
	AspectRatio string `json:"aspectRatio"`
	VisualStyle string `json:"visualStyle"`
	Mood        string `json:"mood,omitempty"`
	ModelHint   string `json:"modelHint,omitempty"`
}
