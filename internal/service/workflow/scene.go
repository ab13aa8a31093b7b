package workflow

import (
	"fmt"
	"strings"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/core"
)

// Accepted spellings of scene object fields.
var (
	imagePromptKeys      = []string{"imagePrompt", "image_prompt", "prompt"}
	negativePromptKeys   = []string{"negativePrompt", "negative_prompt", "negatives"}
	cameraKeys           = []string{"camera", "cameraPreset", "camera_preset"}
	environmentKeys      = []string{"environment", "setting"}
	onScreenTextKeys     = []string{"onScreenText", "on_screen_text", "textOverlay", "text_overlay"}
	compositionNotesKeys = []string{"compositionNotes", "composition_notes", "composition"}
	shotTypeKeys         = []string{"shotType", "shot_type", "shot"}
)

// sceneFromObject builds a scene from the final agent's object. Index and
// purpose come from the plan, never from the model.
func sceneFromObject(obj map[string]any, info core.SceneInfo) *core.GeneratedScene {
	return &core.GeneratedScene{
		Index:            info.Index,
		Purpose:          info.Purpose,
		ShotType:         stringField(obj, shotTypeKeys...),
		ImagePrompt:      stringField(obj, imagePromptKeys...),
		NegativePrompt:   stringField(obj, negativePromptKeys...),
		Camera:           stringField(obj, cameraKeys...),
		Environment:      stringField(obj, environmentKeys...),
		OnScreenText:     stringField(obj, onScreenTextKeys...),
		CompositionNotes: stringField(obj, compositionNotesKeys...),
	}
}

// stringField returns the first non-empty value among keys, rendered as
// text. Lists of scalars are joined with commas.
func stringField(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := obj[k]
		if !ok || v == nil {
			continue
		}
		if s := strings.TrimSpace(textOf(v)); s != "" {
			return s
		}
	}
	return ""
}

func textOf(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := strings.TrimSpace(textOf(item)); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		return ""
	case float64:
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprint(t)
	}
}
