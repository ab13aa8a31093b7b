package service

import (
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// RolePrompt is a built-in system prompt for a well-known agent role.
type RolePrompt struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Aliases []string `json:"aliases"`
	Final   bool     `json:"final"`
	Content string   `json:"content"`
}

type rolePromptFrontmatter struct {
	ID      string   `yaml:"id"`
	Title   string   `yaml:"title"`
	Aliases []string `yaml:"aliases"`
	Final   bool     `yaml:"final"`
}

var (
	rolePromptsOnce sync.Once
	rolePrompts     []RolePrompt
	rolePromptsErr  error
)

// ListRolePrompts returns every embedded role prompt, sorted by id.
func ListRolePrompts() ([]RolePrompt, error) {
	rolePromptsOnce.Do(func() {
		rolePrompts, rolePromptsErr = loadRolePrompts()
	})
	if rolePromptsErr != nil {
		return nil, rolePromptsErr
	}
	return append([]RolePrompt(nil), rolePrompts...), nil
}

func loadRolePrompts() ([]RolePrompt, error) {
	var out []RolePrompt
	err := fs.WalkDir(promptsFS, "prompts/roles", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".md") {
			return nil
		}

		content, err := promptsFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		id := strings.TrimSuffix(strings.TrimPrefix(path, "prompts/roles/"), ".md")

		fmRaw, body, ok := splitFrontmatter(string(content))
		if !ok {
			return fmt.Errorf("missing frontmatter (role=%s)", id)
		}
		var fm rolePromptFrontmatter
		if err := yaml.Unmarshal([]byte(fmRaw), &fm); err != nil {
			return fmt.Errorf("parsing frontmatter (role=%s): %w", id, err)
		}
		if fm.ID != id {
			return fmt.Errorf("frontmatter: id %q does not match filename %q", fm.ID, id)
		}
		if strings.TrimSpace(fm.Title) == "" {
			return fmt.Errorf("frontmatter: title is required (role=%s)", id)
		}

		out = append(out, RolePrompt{
			ID:      fm.ID,
			Title:   fm.Title,
			Aliases: fm.Aliases,
			Final:   fm.Final,
			Content: strings.TrimSpace(body),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var roleSeparators = regexp.MustCompile(`[\s_]+`)

func normalizeRole(role string) string {
	return roleSeparators.ReplaceAllString(strings.ToLower(strings.TrimSpace(role)), "-")
}

// LookupRolePrompt finds the built-in prompt for role. An exact id or alias
// match wins; otherwise the first prompt whose id or alias appears as a
// dash-separated part of the role is used ("senior copywriter" finds
// "copywriter").
func LookupRolePrompt(role string) (RolePrompt, bool) {
	prompts, err := ListRolePrompts()
	if err != nil {
		return RolePrompt{}, false
	}
	want := normalizeRole(role)
	if want == "" {
		return RolePrompt{}, false
	}

	for _, p := range prompts {
		for _, name := range append([]string{p.ID}, p.Aliases...) {
			if normalizeRole(name) == want {
				return p, true
			}
		}
	}

	padded := "-" + want + "-"
	for _, p := range prompts {
		for _, name := range append([]string{p.ID}, p.Aliases...) {
			if strings.Contains(padded, "-"+normalizeRole(name)+"-") {
				return p, true
			}
		}
	}
	return RolePrompt{}, false
}
