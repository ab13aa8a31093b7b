package contenttype

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/core"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/service"
)

// fileDefinition is the on-disk shape of a content type. JSON files decode
// through the same path since YAML is a superset of JSON.
type fileDefinition struct {
	ID        string              `yaml:"id"`
	Name      string              `yaml:"name"`
	Strategy  string              `yaml:"strategy"`
	Policy    core.ScenePolicy    `yaml:"policy"`
	Contract  core.OutputContract `yaml:"contract"`
	Rendering fileRendering       `yaml:"rendering"`

	// Workflow is either an agent list or an object with execution_order
	// and agents. Top-level agents and execution_order are the flat form.
	Workflow       yaml.Node `yaml:"workflow"`
	Agents         yaml.Node `yaml:"agents"`
	ExecutionOrder string    `yaml:"execution_order"`
}

type fileRendering struct {
	AspectRatio string `yaml:"aspect_ratio"`
	VisualStyle string `yaml:"visual_style"`
	Mood        string `yaml:"mood"`
	ModelHint   string `yaml:"model_hint"`
}

type fileWorkflow struct {
	ExecutionOrder string    `yaml:"execution_order"`
	Agents         yaml.Node `yaml:"agents"`
}

type fileAgent struct {
	ID            string         `yaml:"id"`
	Role          string         `yaml:"role"`
	Name          string         `yaml:"name"`
	SystemPrompt  string         `yaml:"system_prompt"`
	Prompt        string         `yaml:"prompt"`
	Temperature   *float64       `yaml:"temperature"`
	Order         int            `yaml:"order"`
	InputFrom     []string       `yaml:"input_from"`
	OutputTo      []string       `yaml:"output_to"`
	ReadsFrom     []string       `yaml:"reads_from"`
	WritesTo      []string       `yaml:"writes_to"`
	Final         bool           `yaml:"final"`
	OutputSchemas map[string]any `yaml:"output_schemas"`
}

// resolveWorkflow turns the polymorphic workflow section into the
// canonical agent workflow.
func (f *fileDefinition) resolveWorkflow() (core.AgentWorkflow, error) {
	order := f.ExecutionOrder
	agents := &f.Agents

	switch f.Workflow.Kind {
	case 0:
	case yaml.SequenceNode:
		if !isEmpty(agents) {
			return core.AgentWorkflow{}, invalid(&f.Workflow, "agents are declared both under workflow and at the top level")
		}
		agents = &f.Workflow
	case yaml.MappingNode:
		var w fileWorkflow
		if err := f.Workflow.Decode(&w); err != nil {
			return core.AgentWorkflow{}, invalid(&f.Workflow, err.Error())
		}
		if !isEmpty(agents) && !isEmpty(&w.Agents) {
			return core.AgentWorkflow{}, invalid(&f.Workflow, "agents are declared both under workflow and at the top level")
		}
		if !isEmpty(&w.Agents) {
			agents = &w.Agents
		}
		if w.ExecutionOrder != "" {
			order = w.ExecutionOrder
		}
	case yaml.ScalarNode:
		if f.Workflow.Tag == "!!null" {
			break
		}
		return core.AgentWorkflow{}, invalid(&f.Workflow, "workflow must be a list of agents or an object")
	default:
		return core.AgentWorkflow{}, invalid(&f.Workflow, "workflow must be a list of agents or an object")
	}

	list, err := decodeAgents(agents)
	if err != nil {
		return core.AgentWorkflow{}, err
	}
	return core.AgentWorkflow{
		ExecutionOrder: core.ExecutionOrder(strings.ToLower(strings.TrimSpace(order))),
		Agents:         list,
	}, nil
}

// decodeAgents accepts each entry either as a role name, which picks up
// the built-in prompt for that role, or as a full agent object.
func decodeAgents(node *yaml.Node) ([]core.AgentDefinition, error) {
	if isEmpty(node) {
		return nil, nil
	}
	if node.Kind != yaml.SequenceNode {
		return nil, invalid(node, "agents must be a list")
	}

	out := make([]core.AgentDefinition, 0, len(node.Content))
	for i, item := range node.Content {
		switch item.Kind {
		case yaml.ScalarNode:
			out = append(out, agentFromRole(item.Value))
		case yaml.MappingNode:
			var fa fileAgent
			if err := item.Decode(&fa); err != nil {
				return nil, invalid(item, err.Error())
			}
			agent, err := fa.definition()
			if err != nil {
				return nil, invalid(item, fmt.Sprintf("agent %d: %v", i+1, err))
			}
			out = append(out, agent)
		default:
			return nil, invalid(item, fmt.Sprintf("agent %d must be a role name or an object", i+1))
		}
	}
	return out, nil
}

func agentFromRole(role string) core.AgentDefinition {
	role = strings.TrimSpace(role)
	agent := core.AgentDefinition{
		ID:          slug(role),
		Role:        role,
		Temperature: core.DefaultTemperature,
	}
	if p, ok := service.LookupRolePrompt(role); ok {
		agent.Name = p.Title
	}
	return agent
}

func (fa fileAgent) definition() (core.AgentDefinition, error) {
	agent := core.AgentDefinition{
		ID:           strings.TrimSpace(fa.ID),
		Role:         strings.TrimSpace(fa.Role),
		Name:         fa.Name,
		SystemPrompt: fa.SystemPrompt,
		Prompt:       fa.Prompt,
		Temperature:  core.DefaultTemperature,
		Order:        fa.Order,
		InputFrom:    fa.InputFrom,
		OutputTo:     fa.OutputTo,
		ReadsFrom:    fa.ReadsFrom,
		WritesTo:     fa.WritesTo,
		Final:        fa.Final,
	}
	if agent.ID == "" && agent.Role != "" {
		agent.ID = slug(agent.Role)
	}
	if fa.Temperature != nil {
		t := *fa.Temperature
		if t < 0 || t > core.MaxTemperature {
			return core.AgentDefinition{}, fmt.Errorf("temperature %g out of range [0, %g]", t, core.MaxTemperature)
		}
		agent.Temperature = t
	}

	if len(fa.OutputSchemas) > 0 {
		agent.OutputSchemas = make(map[string]json.RawMessage, len(fa.OutputSchemas))
		for key, schema := range fa.OutputSchemas {
			raw, err := schemaJSON(schema)
			if err != nil {
				return core.AgentDefinition{}, fmt.Errorf("output schema %q: %w", key, err)
			}
			agent.OutputSchemas[key] = raw
		}
	}
	return agent, nil
}

// schemaJSON accepts a schema written inline as YAML or as a JSON string.
func schemaJSON(v any) (json.RawMessage, error) {
	if s, ok := v.(string); ok {
		if !json.Valid([]byte(s)) {
			return nil, fmt.Errorf("not valid JSON")
		}
		return json.RawMessage(s), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (f *fileDefinition) rendering() core.RenderingSpec {
	return core.RenderingSpec{
		AspectRatio: f.Rendering.AspectRatio,
		VisualStyle: f.Rendering.VisualStyle,
		Mood:        f.Rendering.Mood,
		ModelHint:   f.Rendering.ModelHint,
	}
}

func isEmpty(n *yaml.Node) bool {
	return n.Kind == 0 || (n.Kind == yaml.ScalarNode && n.Tag == "!!null")
}

func invalid(n *yaml.Node, msg string) error {
	return core.ErrConfiguration(core.CodeInvalidWorkflow, fmt.Sprintf("line %d: %s", n.Line, msg))
}

// slug lowercases s and joins its words with dashes.
func slug(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	return strings.Join(fields, "-")
}
