package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/core"
)

var (
	planCountRe  = regexp.MustCompile(`Produce between (\d+) and (\d+) scenes`)
	catalogueRe  = regexp.MustCompile(`Choose purposes from: (.+)\.`)
	openingRe    = regexp.MustCompile(`"purpose": "([^"]*)"`)
	assembleRe   = regexp.MustCompile(`Assemble scene (\d+) of (\d+)`)
	contributeRe = regexp.MustCompile(`contributing as \*\*(.+?)\*\* to scene (\d+) of (\d+)`)
	outputKeysRe = regexp.MustCompile(`exactly these keys: (.+)\.`)
	backtickRe   = regexp.MustCompile("`([^`]+)`")
	purposeRe    = regexp.MustCompile(`(?m)^- Purpose: (.+)$`)
	cameraRe     = regexp.MustCompile("`camera`: exactly one of ([^\n]+)")
	shotRe       = regexp.MustCompile("`shotType`: one of ([^\n]+)")
	batchSceneRe = regexp.MustCompile(`(?m)^(\d+)\. ([^(\n]+)`)
)

// ScriptedModel answers every prompt the generation pipeline sends with a
// well-formed deterministic response, without network access. It backs
// dry runs and end-to-end tests.
type ScriptedModel struct{}

// NewScriptedModel creates a scripted model.
func NewScriptedModel() *ScriptedModel { return &ScriptedModel{} }

// Name implements core.Model.
func (m *ScriptedModel) Name() string { return "scripted" }

// Complete implements core.Model.
func (m *ScriptedModel) Complete(ctx context.Context, req core.CompletionRequest) (*core.CompletionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prompt := req.UserPrompt
	var text string
	switch {
	case planCountRe.MatchString(prompt):
		text = scriptedPlan(prompt)
	case strings.Contains(prompt, "Write every scene"):
		text = scriptedBatch(prompt)
	case assembleRe.MatchString(prompt):
		text = scriptedAssembly(prompt)
	case contributeRe.MatchString(prompt):
		text = scriptedContribution(prompt)
	default:
		text = "scripted response"
	}

	return &core.CompletionResult{
		Text:         text,
		TokensIn:     estimateTokens(req.Prompt()),
		TokensOut:    estimateTokens(text),
		Model:        "scripted",
		FinishReason: "stop",
	}, nil
}

func scriptedPlan(prompt string) string {
	m := planCountRe.FindStringSubmatch(prompt)
	lo, _ := strconv.Atoi(m[1])
	hi, _ := strconv.Atoi(m[2])
	count := lo
	if count <= 0 {
		count = 3
	}
	if hi > 0 && count > hi {
		count = hi
	}

	catalogue := core.DefaultPurposes
	if c := catalogueRe.FindStringSubmatch(prompt); c != nil {
		catalogue = strings.Split(c[1], ", ")
	}
	opening := core.DefaultOpeningType
	// The output example closes the prompt, after any user inputs.
	if all := openingRe.FindAllStringSubmatch(prompt, -1); len(all) > 0 && all[len(all)-1][1] != "" {
		opening = all[len(all)-1][1]
	}

	purposes := []string{opening}
	for _, p := range catalogue {
		if len(purposes) == count {
			break
		}
		if !strings.EqualFold(p, opening) {
			purposes = append(purposes, p)
		}
	}
	for len(purposes) < count {
		purposes = append(purposes, fmt.Sprintf("Scene %d", len(purposes)+1))
	}

	plan := make([]map[string]any, count)
	for i, p := range purposes[:count] {
		plan[i] = map[string]any{"index": i + 1, "purpose": p}
	}
	return mustJSON(plan)
}

func scriptedBatch(prompt string) string {
	section := prompt
	if i := strings.Index(section, "## Scenes"); i >= 0 {
		section = section[i:]
	}
	if i := strings.Index(section, "## Output"); i >= 0 {
		section = section[:i]
	}

	camera, shot := firstOption(prompt, cameraRe, "eye-level medium shot"), firstOption(prompt, shotRe, "medium shot")
	var scenes []map[string]any
	for _, m := range batchSceneRe.FindAllStringSubmatch(section, -1) {
		idx, _ := strconv.Atoi(m[1])
		scenes = append(scenes, scriptedScene(idx, strings.TrimSpace(m[2]), camera, shot))
	}
	return mustJSON(scenes)
}

func scriptedAssembly(prompt string) string {
	m := assembleRe.FindStringSubmatch(prompt)
	idx, _ := strconv.Atoi(m[1])
	purpose := fmt.Sprintf("scene %d", idx)
	if p := purposeRe.FindStringSubmatch(prompt); p != nil {
		purpose = strings.TrimSpace(p[1])
	}
	camera, shot := firstOption(prompt, cameraRe, "eye-level medium shot"), firstOption(prompt, shotRe, "medium shot")
	return mustJSON(scriptedScene(idx, purpose, camera, shot))
}

func scriptedContribution(prompt string) string {
	m := contributeRe.FindStringSubmatch(prompt)
	role, scene := m[1], m[2]
	purpose := "scene " + scene
	if p := purposeRe.FindStringSubmatch(prompt); p != nil {
		purpose = strings.TrimSpace(p[1])
	}

	keys := []string{"notes"}
	if k := outputKeysRe.FindStringSubmatch(prompt); k != nil {
		if found := backtickRe.FindAllStringSubmatch(k[1], -1); len(found) > 0 {
			keys = keys[:0]
			for _, f := range found {
				keys = append(keys, f[1])
			}
		}
	}

	out := make(map[string]string, len(keys))
	for _, k := range keys {
		out[k] = fmt.Sprintf("%s %s for scene %s: %s", role, k, scene, purpose)
	}
	return mustJSON(out)
}

func scriptedScene(index int, purpose, camera, shot string) map[string]any {
	if purpose == "" {
		purpose = fmt.Sprintf("scene %d", index)
	}
	return map[string]any{
		"index":            index,
		"shotType":         shot,
		"imagePrompt":      fmt.Sprintf("A still frame for scene %d showing the %s moment in soft natural light.", index, purpose),
		"negativePrompt":   "blurry, distorted lettering, watermark",
		"camera":           camera,
		"environment":      "bright minimal studio set",
		"onScreenText":     strings.ToUpper(purpose[:1]) + purpose[1:],
		"compositionNotes": "subject on the left third with clean space for text",
	}
}

// firstOption returns the first entry of a comma-separated option list.
func firstOption(prompt string, re *regexp.Regexp, fallback string) string {
	m := re.FindStringSubmatch(prompt)
	if m == nil {
		return fallback
	}
	first, _, _ := strings.Cut(m[1], ", ")
	if first = strings.TrimSpace(first); first == "" {
		return fallback
	}
	return first
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}
