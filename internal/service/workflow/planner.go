package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/core"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/logging"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/service"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/tracing"
)

// plannerAgentID identifies the planner in errors and events.
const plannerAgentID = "scene-planner"

// planTemperature keeps planning close to deterministic.
const planTemperature = 0.3

// sceneLineRe matches "Scene N: purpose" lines, tolerating list markers and
// bold markup.
var sceneLineRe = regexp.MustCompile(`(?im)^[\s\-*#>]*(?:\*\*)?scene\s*(\d+)(?:\*\*)?\s*[:.)\-–—]\s*(?:\*\*)?\s*(.+?)\s*$`)

// ScenePlanner decides how many scenes to produce and what each is for.
type ScenePlanner struct {
	executor *AgentExecutor
	renderer *service.PromptRenderer
	logger   *logging.Logger
}

// NewScenePlanner creates a planner issuing its single model call through
// executor.
func NewScenePlanner(executor *AgentExecutor, renderer *service.PromptRenderer, logger *logging.Logger) *ScenePlanner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &ScenePlanner{executor: executor, renderer: renderer, logger: logger}
}

// Plan makes exactly one model call and returns between policy.MinScenes and
// policy.MaxScenes scenes, indexed 1..n. The policy must have its defaults
// applied.
func (p *ScenePlanner) Plan(ctx context.Context, inputs core.Inputs, policy core.ScenePolicy) (plan []core.SceneInfo, err error) {
	ctx, span := tracing.StartSpan(ctx, "scene.plan",
		tracing.IntAttr("policy.min", policy.MinScenes),
		tracing.IntAttr("policy.max", policy.MaxScenes),
	)
	defer func() { tracing.End(span, err) }()

	in, err := json.MarshalIndent(inputs.Map(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding inputs: %w", err)
	}
	task, err := p.renderer.RenderScenePlan(service.ScenePlanParams{Inputs: string(in), Policy: policy})
	if err != nil {
		return nil, fmt.Errorf("rendering plan prompt: %w", err)
	}

	agent := core.AgentDefinition{ID: plannerAgentID, Role: plannerAgentID}
	completion, err := p.executor.call(ctx, agent, core.SceneInfo{}, core.CompletionRequest{
		SystemPrompt: SystemPrompt(agent),
		UserPrompt:   task,
		Temperature:  planTemperature,
	})
	if err != nil {
		return nil, err
	}

	parsed := ParsePlan(completion.Text)
	if len(parsed) == 0 {
		return nil, core.ErrPlanningFailure("planner response contained no scenes").
			WithDetail("response_chars", len(completion.Text))
	}
	plan = NormalizePlan(parsed, policy)

	p.logger.WithContext(ctx).Info("scene plan ready",
		"parsed", len(parsed),
		"scenes", len(plan),
	)
	return plan, nil
}

// ParsePlan recovers scenes from a planner response: a JSON array of
// objects or strings, an object with a "scenes" array, or "Scene N: purpose"
// lines. Entries without a purpose are dropped.
func ParsePlan(text string) []core.SceneInfo {
	if value, _, ok := decodePlanJSON(text); ok {
		if scenes := scenesFromJSON(value); len(scenes) > 0 {
			return scenes
		}
	}

	var scenes []core.SceneInfo
	for _, m := range sceneLineRe.FindAllStringSubmatch(text, -1) {
		purpose := strings.Trim(strings.TrimSpace(m[2]), "*_ ")
		if purpose == "" {
			continue
		}
		idx, _ := strconv.Atoi(m[1])
		scenes = append(scenes, core.SceneInfo{Index: idx, Purpose: purpose})
	}
	return scenes
}

// decodePlanJSON is decodeJSON with an extra step for bare arrays wrapped in
// prose, which the object extractor does not see.
func decodePlanJSON(text string) (any, CoercionPath, bool) {
	trimmed := strings.TrimSpace(text)
	if v, ok := unmarshal(trimmed); ok {
		return v, PathJSON, true
	}
	if m := codeFenceRe.FindStringSubmatch(trimmed); len(m) > 1 {
		if v, ok := unmarshal(strings.TrimSpace(m[1])); ok {
			return v, PathFenced, true
		}
	}
	if start, end := strings.IndexByte(trimmed, '['), strings.LastIndexByte(trimmed, ']'); start != -1 && end > start {
		if v, ok := unmarshal(trimmed[start : end+1]); ok {
			return v, PathExtracted, true
		}
	}
	return decodeJSON(trimmed)
}

func scenesFromJSON(value any) []core.SceneInfo {
	if obj, ok := value.(map[string]any); ok {
		value = obj["scenes"]
	}
	items, ok := value.([]any)
	if !ok {
		return nil
	}

	scenes := make([]core.SceneInfo, 0, len(items))
	for _, item := range items {
		var s core.SceneInfo
		switch v := item.(type) {
		case string:
			s.Purpose = strings.TrimSpace(v)
		case map[string]any:
			s.Purpose = stringField(v, "purpose", "title", "name", "type")
			s.ExecutionInput = stringField(v, "execution_input", "executionInput", "description", "direction")
			if n, ok := v["index"].(float64); ok {
				s.Index = int(n)
			}
		}
		if s.Purpose != "" {
			scenes = append(scenes, s)
		}
	}
	return scenes
}

// NormalizePlan clamps a parsed plan to the policy bounds, snaps purposes to
// the catalogue and reassigns indices 1..n. Short plans are padded with
// catalogue purposes not yet used, in catalogue order, then "Scene N".
func NormalizePlan(scenes []core.SceneInfo, policy core.ScenePolicy) []core.SceneInfo {
	out := make([]core.SceneInfo, 0, max(len(scenes), policy.MinScenes))
	for _, s := range scenes {
		s.Purpose = SnapPurpose(s.Purpose, policy.Purposes)
		out = append(out, s)
	}
	if policy.MaxScenes > 0 && len(out) > policy.MaxScenes {
		out = out[:policy.MaxScenes]
	}

	used := make(map[string]bool, len(out))
	for _, s := range out {
		used[strings.ToLower(s.Purpose)] = true
	}
	catalogue := policy.Purposes
	if len(catalogue) == 0 {
		catalogue = core.DefaultPurposes
	}
	for _, purpose := range catalogue {
		if len(out) >= policy.MinScenes {
			break
		}
		if !used[strings.ToLower(purpose)] {
			out = append(out, core.SceneInfo{Purpose: purpose})
			used[strings.ToLower(purpose)] = true
		}
	}
	for len(out) < policy.MinScenes {
		out = append(out, core.SceneInfo{Purpose: fmt.Sprintf("Scene %d", len(out)+1)})
	}

	for i := range out {
		out[i].Index = i + 1
	}
	return out
}

// SnapPurpose maps a model label onto the catalogue entry it abbreviates
// ("cta" to "call to action"). Exact matches, labels shorter than three
// characters and labels matching nothing are returned unchanged.
func SnapPurpose(purpose string, catalogue []string) string {
	purpose = strings.TrimSpace(purpose)
	if len(catalogue) == 0 || len([]rune(purpose)) < 3 {
		return purpose
	}
	lower := strings.ToLower(purpose)
	targets := make([]string, len(catalogue))
	for i, c := range catalogue {
		if strings.EqualFold(c, purpose) {
			return c
		}
		targets[i] = strings.ToLower(c)
	}
	for _, m := range fuzzy.Find(lower, targets) {
		if abbreviates(lower, m.Str) {
			return catalogue[m.Index]
		}
	}
	return purpose
}

// abbreviates reports whether label is the initialism of entry ("cta") or
// abbreviates its leading words in order ("prod reveal"). A fuzzy
// subsequence alone is not enough: "cat" does not abbreviate
// "call to action".
func abbreviates(label, entry string) bool {
	words := strings.Fields(entry)
	parts := strings.Fields(label)
	if len(parts) == 0 || len(parts) > len(words) {
		return false
	}

	if len(parts) == 1 && len(words) > 1 && len(label) == len(words) {
		initialism := true
		for i, w := range words {
			if label[i] != w[0] {
				initialism = false
				break
			}
		}
		if initialism {
			return true
		}
	}

	if len(parts[0]) < 3 {
		return false
	}
	for i, part := range parts {
		if !strings.HasPrefix(words[i], part) {
			return false
		}
	}
	return true
}
