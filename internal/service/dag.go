package service

import (
	"fmt"
	"slices"
	"sort"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/core"
)

// AgentGraph constructs the dependency graph of a custom-mode workflow.
type AgentGraph struct {
	agents  map[string]core.AgentDefinition
	edges   map[string][]string // agent -> dependencies
	reverse map[string][]string // agent -> dependents
}

// NewAgentGraph creates an empty agent graph.
func NewAgentGraph() *AgentGraph {
	return &AgentGraph{
		agents:  make(map[string]core.AgentDefinition),
		edges:   make(map[string][]string),
		reverse: make(map[string][]string),
	}
}

// AddAgent adds an agent node.
func (g *AgentGraph) AddAgent(agent core.AgentDefinition) error {
	if _, exists := g.agents[agent.ID]; exists {
		return fmt.Errorf("agent %s already exists", agent.ID)
	}
	g.agents[agent.ID] = agent
	g.edges[agent.ID] = nil
	g.reverse[agent.ID] = nil
	return nil
}

// AddDependency records that from reads the output of to.
func (g *AgentGraph) AddDependency(from, to string) error {
	if _, exists := g.agents[from]; !exists {
		return fmt.Errorf("agent %s not found", from)
	}
	if _, exists := g.agents[to]; !exists {
		return fmt.Errorf("agent %s not found", to)
	}
	if slices.Contains(g.edges[from], to) {
		return nil
	}
	g.edges[from] = append(g.edges[from], to)
	g.reverse[to] = append(g.reverse[to], from)
	return nil
}

// AgentPlan is a validated execution order for a custom-mode workflow.
type AgentPlan struct {
	Order        []string
	Levels       [][]string
	Dependencies map[string][]string
}

// Build validates the graph and returns the execution plan.
func (g *AgentGraph) Build() (*AgentPlan, error) {
	if cycle := g.findCycle(); cycle != nil {
		return nil, core.ErrWorkflowCycle(cycle)
	}

	order, err := g.topologicalSort()
	if err != nil {
		return nil, err
	}

	return &AgentPlan{
		Order:        order,
		Levels:       g.calculateLevels(),
		Dependencies: g.copyEdges(),
	}, nil
}

// less orders ready agents by declared order, then id.
func (g *AgentGraph) less(a, b string) bool {
	oa, ob := g.agents[a].Order, g.agents[b].Order
	if oa != ob {
		return oa < ob
	}
	return a < b
}

func (g *AgentGraph) sortedIDs() []string {
	ids := make([]string, 0, len(g.agents))
	for id := range g.agents {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return g.less(ids[i], ids[j]) })
	return ids
}

// topologicalSort runs Kahn's algorithm. The ready set is kept sorted by
// declared order so independent agents run in ascending order.
func (g *AgentGraph) topologicalSort() ([]string, error) {
	inDegree := make(map[string]int, len(g.agents))
	for id := range g.agents {
		inDegree[id] = len(g.edges[id])
	}

	ready := make([]string, 0)
	for _, id := range g.sortedIDs() {
		if inDegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	result := make([]string, 0, len(g.agents))
	for len(ready) > 0 {
		current := ready[0]
		ready = ready[1:]
		result = append(result, current)

		for _, dependent := range g.reverse[current] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, dependent)
				sort.Slice(ready, func(i, j int) bool { return g.less(ready[i], ready[j]) })
			}
		}
	}

	if len(result) != len(g.agents) {
		return nil, core.ErrWorkflowCycle(nil)
	}
	return result, nil
}

// findCycle returns the agents of the first cycle found by DFS, or nil.
func (g *AgentGraph) findCycle() []string {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	var stack []string
	var cycle []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		onStack[id] = true
		stack = append(stack, id)

		for _, dep := range g.edges[id] {
			if !visited[dep] {
				if dfs(dep) {
					return true
				}
			} else if onStack[dep] {
				start := slices.Index(stack, dep)
				cycle = append([]string(nil), stack[start:]...)
				return true
			}
		}

		onStack[id] = false
		stack = stack[:len(stack)-1]
		return false
	}

	for _, id := range g.sortedIDs() {
		if !visited[id] && dfs(id) {
			return cycle
		}
	}
	return nil
}

// calculateLevels groups agents whose dependencies are all satisfied by
// earlier levels.
func (g *AgentGraph) calculateLevels() [][]string {
	if len(g.agents) == 0 {
		return nil
	}

	levels := make([][]string, 0)
	assigned := make(map[string]bool)
	ids := g.sortedIDs()

	for len(assigned) < len(g.agents) {
		level := make([]string, 0)
		for _, id := range ids {
			if assigned[id] {
				continue
			}
			ready := true
			for _, dep := range g.edges[id] {
				if !assigned[dep] {
					ready = false
					break
				}
			}
			if ready {
				level = append(level, id)
			}
		}
		if len(level) == 0 {
			break
		}
		for _, id := range level {
			assigned[id] = true
		}
		levels = append(levels, level)
	}
	return levels
}

// Dependencies returns the agents id depends on.
func (g *AgentGraph) Dependencies(id string) []string {
	return slices.Clone(g.edges[id])
}

// Dependents returns the agents that depend on id.
func (g *AgentGraph) Dependents(id string) []string {
	return slices.Clone(g.reverse[id])
}

// AgentCount returns the number of agents in the graph.
func (g *AgentGraph) AgentCount() int {
	return len(g.agents)
}

func (g *AgentGraph) copyEdges() map[string][]string {
	result := make(map[string][]string, len(g.edges))
	for k, v := range g.edges {
		result[k] = slices.Clone(v)
	}
	return result
}

// BuildAgentGraph derives the dependency graph of a normalized workflow
// from its declared reads. In the current shape a read names a shared-state
// key and depends on every other agent writing it. In the legacy shape inputFrom
// names agent ids and outputTo adds the reverse edge. The final agent always
// runs last, so nothing may depend on it.
func BuildAgentGraph(w *core.AgentWorkflow) (*AgentGraph, error) {
	g := NewAgentGraph()
	for _, a := range w.Agents {
		if err := g.AddAgent(a); err != nil {
			return nil, core.ErrConfiguration(core.CodeInvalidWorkflow, err.Error())
		}
	}

	writers := make(map[string][]string)
	for _, a := range w.Agents {
		for _, key := range a.OutputKeys() {
			writers[key] = append(writers[key], a.ID)
		}
	}

	depend := func(from, to string) error {
		if from == to {
			return core.ErrWorkflowCycle([]string{from})
		}
		if to == w.FinalAgentID {
			return core.ErrConfiguration(core.CodeInvalidWorkflow,
				fmt.Sprintf("agent %q depends on the final agent %q", from, to))
		}
		return g.AddDependency(from, to)
	}

	for _, a := range w.Agents {
		if w.Shape == core.ShapeCurrent {
			for _, key := range a.ReadsFrom {
				if key == core.InputKey {
					continue
				}
				ids, ok := writers[key]
				if !ok {
					return nil, core.ErrConfiguration(core.CodeInvalidWorkflow,
						fmt.Sprintf("agent %q reads %q which no agent writes", a.ID, key))
				}
				for _, id := range ids {
					// Rewriting a key it reads extends the value in place.
					if id == a.ID {
						continue
					}
					if err := depend(a.ID, id); err != nil {
						return nil, err
					}
				}
			}
			continue
		}

		for _, id := range a.InputFrom {
			if id == core.InputKey {
				continue
			}
			if _, ok := w.Agent(id); !ok {
				return nil, core.ErrConfiguration(core.CodeInvalidWorkflow,
					fmt.Sprintf("agent %q reads from unknown agent %q", a.ID, id))
			}
			if err := depend(a.ID, id); err != nil {
				return nil, err
			}
		}
		for _, id := range a.OutputTo {
			if _, ok := w.Agent(id); !ok {
				return nil, core.ErrConfiguration(core.CodeInvalidWorkflow,
					fmt.Sprintf("agent %q outputs to unknown agent %q", a.ID, id))
			}
			if err := depend(id, a.ID); err != nil {
				return nil, err
			}
		}
	}
	return g, nil
}

// PlanCustomOrder returns the execution order of a custom-mode workflow,
// with the final agent last.
func PlanCustomOrder(w *core.AgentWorkflow) ([]string, error) {
	g, err := BuildAgentGraph(w)
	if err != nil {
		return nil, err
	}
	plan, err := g.Build()
	if err != nil {
		return nil, err
	}

	order := make([]string, 0, len(plan.Order))
	for _, id := range plan.Order {
		if id != w.FinalAgentID {
			order = append(order, id)
		}
	}
	return append(order, w.FinalAgentID), nil
}
