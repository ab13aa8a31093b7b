package workflow

import (
	"strings"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/core"
)

// BuildRenderingSpec derives the session rendering spec from normalized
// inputs. Non-empty override fields win. A platform such as "youtube shorts"
// is matched word by word, the last known word deciding.
func BuildRenderingSpec(inputs core.Inputs, overrides core.RenderingSpec) core.RenderingSpec {
	spec := core.RenderingSpec{
		AspectRatio: core.DefaultAspectRatio,
		VisualStyle: core.DefaultVisualStyle,
	}

	if ratio, ok := core.PlatformAspectRatios[inputs.Platform]; ok {
		spec.AspectRatio = ratio
	} else {
		for _, word := range strings.FieldsFunc(inputs.Platform, func(r rune) bool {
			return r == ' ' || r == '-' || r == '_' || r == '/'
		}) {
			if ratio, ok := core.PlatformAspectRatios[word]; ok {
				spec.AspectRatio = ratio
			}
		}
	}

	if mood, ok := core.ToneMoods[inputs.Tone]; ok {
		spec.Mood = mood
	} else {
		spec.Mood = inputs.Tone
	}

	if overrides.AspectRatio != "" {
		spec.AspectRatio = overrides.AspectRatio
	}
	if overrides.VisualStyle != "" {
		spec.VisualStyle = overrides.VisualStyle
	}
	if overrides.Mood != "" {
		spec.Mood = overrides.Mood
	}
	if overrides.ModelHint != "" {
		spec.ModelHint = overrides.ModelHint
	}
	return spec
}
