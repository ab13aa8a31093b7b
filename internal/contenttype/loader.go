// Package contenttype loads content-type definitions from YAML or JSON and
// resolves them into validated core definitions.
package contenttype

import (
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/core"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/fsutil"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/service"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/service/workflow"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Load reads and validates the content type at path. A name without a
// path separator or extension that matches a built-in content type loads
// the built-in instead.
func Load(path string) (*core.ContentTypeDefinition, error) {
	if isBuiltinName(path) {
		if ct, err := Builtin(path); err == nil {
			return ct, nil
		}
	}
	data, err := fsutil.ReadFileScoped(path)
	if err != nil {
		return nil, fmt.Errorf("reading content type: %w", err)
	}
	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return Parse(data, id)
}

// Parse decodes and validates a content type. fallbackID names the content
// type when the document declares no id.
func Parse(data []byte, fallbackID string) (*core.ContentTypeDefinition, error) {
	var f fileDefinition
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, core.ErrConfiguration(core.CodeInvalidConfig,
			fmt.Sprintf("parsing content type %s: %v", fallbackID, err)).WithCause(err)
	}

	wf, err := f.resolveWorkflow()
	if err != nil {
		return nil, err
	}

	ct := &core.ContentTypeDefinition{
		ID:        strings.TrimSpace(f.ID),
		Name:      f.Name,
		Strategy:  strings.ToLower(strings.TrimSpace(f.Strategy)),
		Policy:    f.Policy,
		Contract:  f.Contract,
		Rendering: f.rendering(),
		Workflow:  wf,
	}
	if ct.ID == "" {
		ct.ID = fallbackID
	}
	if ct.Name == "" {
		ct.Name = ct.ID
	}
	if err := Validate(ct); err != nil {
		return nil, err
	}
	return ct, nil
}

// Validate checks a content type and normalizes its workflow in place, so
// configuration errors surface at load time rather than mid-generation.
func Validate(ct *core.ContentTypeDefinition) error {
	switch ct.Strategy {
	case "":
		ct.Strategy = core.StrategyWorkflow
	case core.StrategyWorkflow, core.StrategySinglePrompt:
	default:
		return core.ErrConfiguration(core.CodeInvalidConfig,
			fmt.Sprintf("content type %s: unknown strategy %q", ct.ID, ct.Strategy))
	}

	p := ct.Policy
	if p.MinScenes < 0 || p.MaxScenes < 0 {
		return core.ErrConfiguration(core.CodeInvalidConfig,
			fmt.Sprintf("content type %s: scene counts must be non-negative", ct.ID))
	}
	if p.MaxScenes > 0 && p.MinScenes > p.MaxScenes {
		return core.ErrConfiguration(core.CodeInvalidConfig,
			fmt.Sprintf("content type %s: min_scenes %d exceeds max_scenes %d", ct.ID, p.MinScenes, p.MaxScenes))
	}
	if _, err := service.NewBannedTermScan(ct.Contract.BannedTerms); err != nil {
		return core.ErrConfiguration(core.CodeInvalidConfig,
			fmt.Sprintf("content type %s: %v", ct.ID, err)).WithCause(err)
	}

	if ct.Strategy == core.StrategySinglePrompt && len(ct.Workflow.Agents) == 0 {
		return nil
	}
	if len(ct.Workflow.Agents) == 0 {
		return core.ErrNoWorkflowConfigured(ct.ID)
	}

	w := &ct.Workflow
	if err := w.Normalize(); err != nil {
		return err
	}
	if w.ExecutionOrder == core.ExecutionCustom {
		if _, err := service.PlanCustomOrder(w); err != nil {
			return err
		}
	}
	if _, err := workflow.CompileSchemas(w); err != nil {
		return err
	}
	return nil
}

// Builtin loads an embedded content type by id.
func Builtin(id string) (*core.ContentTypeDefinition, error) {
	data, err := builtinFS.ReadFile("builtin/" + id + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("unknown built-in content type %q", id)
	}
	return Parse(data, id)
}

// BuiltinIDs lists the embedded content types, sorted.
func BuiltinIDs() []string {
	entries, err := fs.ReadDir(builtinFS, "builtin")
	if err != nil {
		return nil
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if name, ok := strings.CutSuffix(e.Name(), ".yaml"); ok {
			ids = append(ids, name)
		}
	}
	sort.Strings(ids)
	return ids
}

// BuiltinSource returns the raw YAML of a built-in content type, for
// writing a starting point to disk.
func BuiltinSource(id string) ([]byte, error) {
	data, err := builtinFS.ReadFile("builtin/" + id + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("unknown built-in content type %q", id)
	}
	return data, nil
}

func isBuiltinName(s string) bool {
	return s != "" && !strings.ContainsAny(s, `/\.`)
}
