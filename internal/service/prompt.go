package service

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/core"
)

//go:embed prompts/*.md.tmpl prompts/roles/*.md
var promptsFS embed.FS

// PromptRenderer renders task prompts from embedded templates. Templates are
// parsed once; the renderer is safe for concurrent use.
type PromptRenderer struct {
	templates map[string]*template.Template
}

// NewPromptRenderer creates a new prompt renderer.
func NewPromptRenderer() (*PromptRenderer, error) {
	r := &PromptRenderer{templates: make(map[string]*template.Template)}
	if err := r.loadTemplates(); err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}
	return r, nil
}

type templateFrontmatter struct {
	ID     string `yaml:"id"`
	Title  string `yaml:"title"`
	Step   string `yaml:"step"`
	Status string `yaml:"status"`
}

func (r *PromptRenderer) loadTemplates() error {
	return fs.WalkDir(promptsFS, "prompts", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".md.tmpl") {
			return nil
		}

		content, err := promptsFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		name := strings.TrimSuffix(strings.TrimPrefix(path, "prompts/"), ".md.tmpl")
		fmRaw, body, ok := splitFrontmatter(string(content))
		if !ok {
			return fmt.Errorf("missing frontmatter (id=%s)", name)
		}
		var fm templateFrontmatter
		if err := yaml.Unmarshal([]byte(fmRaw), &fm); err != nil {
			return fmt.Errorf("parsing frontmatter (id=%s): %w", name, err)
		}
		if fm.ID != name {
			return fmt.Errorf("frontmatter: id %q does not match filename %q", fm.ID, name)
		}

		tmpl, err := template.New(name).Funcs(templateFuncs()).Parse(body)
		if err != nil {
			return fmt.Errorf("parsing template %s: %w", name, err)
		}
		r.templates[name] = tmpl
		return nil
	})
}

// splitFrontmatter separates a leading "---" delimited YAML block from the
// body.
func splitFrontmatter(raw string) (frontmatter, body string, ok bool) {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	if !strings.HasPrefix(s, "---\n") {
		return "", s, false
	}
	rest := s[len("---\n"):]
	end := strings.Index(rest, "\n---\n")
	if end == -1 {
		return "", s, false
	}
	return rest[:end], strings.TrimLeft(rest[end+len("\n---\n"):], "\n"), true
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"join":      strings.Join,
		"indent":    indent,
		"trimSpace": strings.TrimSpace,
		"upper":     strings.ToUpper,
		"lower":     strings.ToLower,
		"add":       func(a, b int) int { return a + b },
		"quote":     func(s string) string { return fmt.Sprintf("%q", s) },
	}
}

func indent(spaces int, s string) string {
	pad := strings.Repeat(" ", spaces)
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = pad + line
		}
	}
	return strings.Join(lines, "\n")
}

// AgentTaskParams feeds the task prompt of a non-final agent.
type AgentTaskParams struct {
	Instructions string // agent-level prompt override, prepended to the task
	Role         string
	Scene        core.SceneInfo
	SceneCount   int
	OutputKeys   []string
	State        string // JSON of the visible shared state
	ExtendDraft  bool   // sequential mode: build on earlier drafts
	History      []string
}

// RenderAgentTask renders the task prompt of a non-final agent.
func (r *PromptRenderer) RenderAgentTask(params AgentTaskParams) (string, error) {
	return r.render("agent-task", params)
}

// FinalAssemblyParams feeds the task prompt of the final agent.
type FinalAssemblyParams struct {
	Instructions  string
	Scene         core.SceneInfo
	SceneCount    int
	State         string
	Contract      core.OutputContract
	OpeningType   string
	StrongOpening bool // scene 1 must be the opening type
	Closing       bool // last scene must resolve the story
	Constraints   []string
	History       []string
}

// RenderFinalAssembly renders the task prompt of the final agent.
func (r *PromptRenderer) RenderFinalAssembly(params FinalAssemblyParams) (string, error) {
	return r.render("final-assembly", params)
}

// ScenePlanParams feeds the scene planning prompt.
type ScenePlanParams struct {
	Inputs string // JSON of the normalized inputs
	Policy core.ScenePolicy
}

// RenderScenePlan renders the scene planning prompt.
func (r *PromptRenderer) RenderScenePlan(params ScenePlanParams) (string, error) {
	return r.render("scene-plan", params)
}

// SinglePromptParams feeds the single-call generation prompt.
type SinglePromptParams struct {
	Inputs      string
	Plan        []core.SceneInfo
	Contract    core.OutputContract
	Rendering   core.RenderingSpec
	OpeningType string
	Constraints []string
}

// RenderSinglePrompt renders the prompt that produces every scene at once.
func (r *PromptRenderer) RenderSinglePrompt(params SinglePromptParams) (string, error) {
	return r.render("single-prompt", params)
}

// Render renders a template by name with the given data.
func (r *PromptRenderer) Render(name string, data any) (string, error) {
	return r.render(name, data)
}

func (r *PromptRenderer) render(name string, data any) (string, error) {
	tmpl, ok := r.templates[name]
	if !ok {
		return "", fmt.Errorf("template %q not found", name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing template %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// ListTemplates returns available template names, sorted.
func (r *PromptRenderer) ListTemplates() []string {
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasTemplate checks if a template exists.
func (r *PromptRenderer) HasTemplate(name string) bool {
	_, ok := r.templates[name]
	return ok
}
