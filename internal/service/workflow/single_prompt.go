package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/core"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/service"
)

// singlePromptAgentID names the one call of the single_prompt strategy.
const singlePromptAgentID = "single-prompt"

// runSinglePrompt produces every planned scene with one model call. The
// banned-vocabulary policy applies to the batch: if any scene violates it,
// the whole call is repeated with the combined findings as a constraint.
func (s *GenerationSession) runSinglePrompt(ctx context.Context, r *run, plan []core.SceneInfo) ([]core.GeneratedScene, error) {
	agent := core.AgentDefinition{
		ID:          singlePromptAgentID,
		Role:        "scene assembler",
		Temperature: core.DefaultTemperature,
	}
	in, err := json.MarshalIndent(r.inputs.Map(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding inputs: %w", err)
	}
	for _, info := range plan {
		s.observer.SceneStarted(info)
	}

	var (
		scenes     []core.GeneratedScene
		violations []string
	)
	for attempt := 0; ; attempt++ {
		task, err := s.renderer.RenderSinglePrompt(service.SinglePromptParams{
			Inputs:      string(in),
			Plan:        plan,
			Contract:    r.contract,
			Rendering:   r.rendering,
			OpeningType: r.policy.OpeningType,
			Constraints: retryConstraints(violations),
		})
		if err != nil {
			return nil, s.failScenes(plan, fmt.Errorf("rendering single prompt: %w", err))
		}

		completion, err := r.executor.callAttempt(ctx, agent, core.SceneInfo{}, core.CompletionRequest{
			SystemPrompt: SystemPrompt(agent),
			UserPrompt:   task,
			Temperature:  agent.Temperature,
		}, true, attempt)
		if err != nil {
			return nil, s.failScenes(plan, err)
		}

		scenes, err = ParseSceneBatch(completion.Text, plan)
		if err != nil {
			return nil, s.failScenes(plan, err)
		}
		for i := range scenes {
			r.enforcer.Enforce(&scenes[i])
			scenes[i].AgentContributions = []core.AgentContribution{{
				AgentID:      agent.ID,
				AgentName:    agent.DisplayName(),
				AgentRole:    agent.Role,
				Input:        map[string]any{core.InputKey: r.inputs.Map()},
				Output:       sceneOutput(scenes[i]),
				Attempt:      attempt,
				CoercionPath: string(PathJSON),
			}}
		}

		violations = batchViolations(r.retry, scenes)
		if len(violations) == 0 || attempt >= r.retry.MaxAttempts {
			break
		}

		delay := r.retry.CalculateDelay(attempt + 1)
		r.logger.WithContext(ctx).Warn("regenerating scene batch",
			"attempt", attempt+1,
			"violation", core.ErrContentPolicyViolation(0, violations).Error(),
		)
		for i := range scenes {
			if found := r.retry.Trigger.Check(&scenes[i]); len(found) > 0 {
				s.observer.RetryTriggered(plan[i], attempt+1, found)
			}
		}
		if delay > 0 {
			select {
			case <-ctx.Done():
				return nil, s.failScenes(plan, ctx.Err())
			case <-time.After(delay):
			}
		}
	}

	for i, info := range plan {
		s.observer.SceneCompleted(info, &scenes[i], nil)
		s.history.RecordScene(scenes[i])
	}
	return scenes, nil
}

func (s *GenerationSession) failScenes(plan []core.SceneInfo, err error) error {
	for _, info := range plan {
		s.observer.SceneCompleted(info, nil, err)
	}
	return err
}

// batchViolations returns the union of the trigger's findings over scenes,
// in first-seen order.
func batchViolations(policy *service.RetryPolicy, scenes []core.GeneratedScene) []string {
	if policy == nil || policy.Trigger == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for i := range scenes {
		for _, v := range policy.Trigger.Check(&scenes[i]) {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	return out
}

// ParseSceneBatch maps a JSON array of scene objects (or {"scenes": [...]})
// onto the plan. An element carrying a valid "index" fills that scene;
// others fill the remaining scenes in order. Every planned scene must be
// covered.
func ParseSceneBatch(text string, plan []core.SceneInfo) ([]core.GeneratedScene, error) {
	value, _, ok := decodePlanJSON(text)
	if !ok {
		return nil, core.ErrFinalAgentOutputMissing(singlePromptAgentID, 1).
			WithDetail("response_chars", len(text))
	}
	if obj, isObj := value.(map[string]any); isObj {
		if nested, has := obj["scenes"]; has {
			value = nested
		} else {
			value = []any{obj}
		}
	}
	items, _ := value.([]any)

	byIndex := make(map[int]map[string]any, len(plan))
	var unindexed []map[string]any
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if n, ok := obj["index"].(float64); ok {
			idx := int(n)
			if _, taken := byIndex[idx]; !taken && idx >= 1 && idx <= len(plan) {
				byIndex[idx] = obj
				continue
			}
		}
		unindexed = append(unindexed, obj)
	}

	scenes := make([]core.GeneratedScene, 0, len(plan))
	for _, info := range plan {
		obj, ok := byIndex[info.Index]
		if !ok {
			if len(unindexed) == 0 {
				return nil, core.ErrFinalAgentOutputMissing(singlePromptAgentID, info.Index).
					WithDetail("scenes_returned", len(items))
			}
			obj, unindexed = unindexed[0], unindexed[1:]
		}
		if nested := sceneObject(obj); nested != nil {
			obj = nested
		}
		scenes = append(scenes, *sceneFromObject(obj, info))
	}
	return scenes, nil
}

func sceneOutput(s core.GeneratedScene) map[string]any {
	return map[string]any{
		"shotType":         s.ShotType,
		"imagePrompt":      s.ImagePrompt,
		"negativePrompt":   s.NegativePrompt,
		"camera":           s.Camera,
		"environment":      s.Environment,
		"onScreenText":     s.OnScreenText,
		"compositionNotes": s.CompositionNotes,
	}
}
