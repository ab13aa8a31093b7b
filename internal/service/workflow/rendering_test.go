package workflow

import (
	"testing"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/core"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/testutil"
)

func TestBuildRenderingSpec(t *testing.T) {
	tests := []struct {
		name      string
		inputs    core.Inputs
		overrides core.RenderingSpec
		want      core.RenderingSpec
	}{
		{
			name:   "known platform and tone",
			inputs: core.Inputs{Platform: "tiktok", Tone: "luxury"},
			want:   core.RenderingSpec{AspectRatio: "9:16", VisualStyle: core.DefaultVisualStyle, Mood: "moody, refined"},
		},
		{
			name:   "last known word decides",
			inputs: core.Inputs{Platform: "youtube shorts", Tone: "wistful"},
			want:   core.RenderingSpec{AspectRatio: "9:16", VisualStyle: core.DefaultVisualStyle, Mood: "wistful"},
		},
		{
			name:   "unknown platform",
			inputs: core.Inputs{Platform: "billboard"},
			want:   core.RenderingSpec{AspectRatio: core.DefaultAspectRatio, VisualStyle: core.DefaultVisualStyle},
		},
		{
			name:      "overrides win",
			inputs:    core.Inputs{Platform: "instagram", Tone: "calm"},
			overrides: core.RenderingSpec{AspectRatio: "3:2", VisualStyle: "watercolour", Mood: "nostalgic", ModelHint: "sdxl"},
			want:      core.RenderingSpec{AspectRatio: "3:2", VisualStyle: "watercolour", Mood: "nostalgic", ModelHint: "sdxl"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutil.AssertEqual(t, BuildRenderingSpec(tt.inputs, tt.overrides), tt.want)
		})
	}
}
