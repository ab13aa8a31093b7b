package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/kaptinlin/jsonschema"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/core"
)

// SchemaSet holds the compiled output schemas of one agent, by key.
type SchemaSet map[string]*jsonschema.Schema

// CompileSchemas compiles the output schemas declared by every agent of w.
// A schema for a key the agent does not write is a configuration error.
func CompileSchemas(w *core.AgentWorkflow) (map[string]SchemaSet, error) {
	out := make(map[string]SchemaSet)
	for _, a := range w.Agents {
		if len(a.OutputSchemas) == 0 {
			continue
		}
		writes := make(map[string]bool)
		for _, k := range a.OutputKeys() {
			writes[k] = true
		}

		keys := make([]string, 0, len(a.OutputSchemas))
		for k := range a.OutputSchemas {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		set := make(SchemaSet, len(keys))
		for _, key := range keys {
			raw := a.OutputSchemas[key]
			if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
				continue
			}
			if !writes[key] {
				return nil, core.ErrConfiguration(core.CodeInvalidWorkflow,
					fmt.Sprintf("agent %q declares a schema for %q which it does not write", a.ID, key))
			}
			schema, err := jsonschema.NewCompiler().Compile(raw)
			if err != nil {
				return nil, core.ErrConfiguration(core.CodeInvalidWorkflow,
					fmt.Sprintf("agent %q: invalid schema for %q", a.ID, key)).WithCause(err)
			}
			set[key] = schema
		}
		out[a.ID] = set
	}
	return out, nil
}

// Validate checks value against the schema for key. Keys without a schema
// always pass.
func (s SchemaSet) Validate(key string, value any) error {
	schema, ok := s[key]
	if !ok {
		return nil
	}
	result := schema.Validate(value)
	if !result.IsValid() {
		return fmt.Errorf("value for %q does not match its schema: %v", key, result.Error())
	}
	return nil
}

// ValidateCoercion checks every structured payload against its schema. A
// mismatching value is degraded to its JSON text so readers can still use
// it, and the mismatch is reported.
func (s SchemaSet) ValidateCoercion(c *Coercion) []Degradation {
	if len(s) == 0 || c.Degraded() {
		return nil
	}
	var out []Degradation
	keys := make([]string, 0, len(c.Payloads))
	for k := range c.Payloads {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		p := c.Payloads[key]
		if p.IsUnstructured() {
			continue
		}
		if err := s.Validate(key, p.Value); err != nil {
			text, _ := json.Marshal(p.Value)
			c.Payloads[key] = core.Unstructured(string(text))
			out = append(out, Degradation{Key: key, Reason: err.Error()})
		}
	}
	return out
}
