package workflow

import (
	"reflect"
	"testing"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/core"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/testutil"
)

func testEnforcer(mutate func(*core.OutputContract, *core.ScenePolicy)) *OutputEnforcer {
	contract := core.OutputContract{
		ImagePromptMaxChars:     120,
		MaxSentencesImagePrompt: 2,
		NegativesMaxChars:       30,
		MaxWordsOnScreenText:    3,
		CameraPresets:           []string{"eye level", "close-up", "overhead"},
	}
	policy := core.ScenePolicy{MinScenes: 1, MaxScenes: 3, OpeningType: "hook"}
	if mutate != nil {
		mutate(&contract, &policy)
	}
	return NewOutputEnforcer(contract, policy)
}

func TestOutputEnforcer_Enforce(t *testing.T) {
	e := testEnforcer(nil)
	scene := &core.GeneratedScene{
		Index:          2,
		Purpose:        "benefit",
		ImagePrompt:    "  A ceramic mug on a sunlit windowsill. Steam curls upward. A cat sleeps nearby.  ",
		NegativePrompt: "blurry, low resolution, watermark, extra fingers",
		Camera:         "CLOSE-UP",
		OnScreenText:   "Start every morning right",
	}

	e.Enforce(scene)

	testutil.AssertEqual(t, scene.ImagePrompt, "A ceramic mug on a sunlit windowsill. Steam curls upward.")
	testutil.AssertEqual(t, scene.Camera, "close-up")
	testutil.AssertEqual(t, scene.OnScreenText, "Start every morning")
	testutil.AssertEqual(t, scene.NegativePrompt, "blurry, low resolution")
	testutil.AssertEqual(t, scene.ShotType, core.DefaultShotType)
}

func TestOutputEnforcer_Defaults(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*core.OutputContract, *core.ScenePolicy)
		scene    core.GeneratedScene
		shotType string
		camera   string
	}{
		{
			name:     "opening gets opening type",
			scene:    core.GeneratedScene{Index: 1, Purpose: "hook"},
			shotType: "hook",
			camera:   "eye level",
		},
		{
			name:     "strong opening overrides model shot type",
			mutate:   func(_ *core.OutputContract, p *core.ScenePolicy) { p.MustStartStrong = true },
			scene:    core.GeneratedScene{Index: 1, Purpose: "hook", ShotType: "wide", Camera: "overhead"},
			shotType: "hook",
			camera:   "overhead",
		},
		{
			name:     "model shot type kept",
			scene:    core.GeneratedScene{Index: 2, Purpose: "reveal", ShotType: "macro"},
			shotType: "macro",
			camera:   "eye level",
		},
		{
			name:     "shot library first entry",
			mutate:   func(c *core.OutputContract, _ *core.ScenePolicy) { c.ShotLibrary = []string{"flat lay", "portrait"} },
			scene:    core.GeneratedScene{Index: 3, Purpose: "proof", Camera: "drone sweep"},
			shotType: "flat lay",
			camera:   "eye level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := testEnforcer(tt.mutate)
			scene := tt.scene
			e.Enforce(&scene)
			testutil.AssertEqual(t, scene.ShotType, tt.shotType)
			testutil.AssertEqual(t, scene.Camera, tt.camera)
			testutil.AssertTrue(t, scene.ImagePrompt != "", "image prompt should be defaulted")
		})
	}
}

func TestOutputEnforcer_DefaultImagePrompt(t *testing.T) {
	e := testEnforcer(nil)
	scene := &core.GeneratedScene{Index: 2, Purpose: "Product Reveal", Environment: "Marble kitchen counter."}
	e.Enforce(scene)
	testutil.AssertEqual(t, scene.ImagePrompt, "A still image for the product reveal scene. Marble kitchen counter.")
}

func TestOutputEnforcer_Idempotent(t *testing.T) {
	e := testEnforcer(func(c *core.OutputContract, p *core.ScenePolicy) {
		c.ImagePromptMaxChars = 70
		p.MustStartStrong = true
	})
	scenes := []core.GeneratedScene{
		{Index: 1, Purpose: "hook", ImagePrompt: "A runner at dawn on a coastal path with golden light everywhere around her and long shadows", Camera: "low"},
		{Index: 2, Purpose: "benefit", ImagePrompt: "One. Two. Three. Four.", NegativePrompt: "text, logos, watermark, signature, frame", OnScreenText: "a b c d e"},
		{Index: 3, Purpose: "cta"},
	}

	for _, s := range scenes {
		once := s
		e.Enforce(&once)
		twice := once
		e.Enforce(&twice)
		if !reflect.DeepEqual(once, twice) {
			t.Errorf("scene %d changed on second pass:\n once: %+v\ntwice: %+v", s.Index, once, twice)
		}
	}
}

func TestTruncateAtSentence(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  string
	}{
		{"within limit", "Short text.", 50, "Short text."},
		{
			name:  "sentence end inside window",
			text:  "A honey jar sits on rustic oak in morning light. Bees drift past the open window frame.",
			limit: 60,
			want:  "A honey jar sits on rustic oak in morning light.",
		},
		{
			name:  "sentence end outside window falls back to word",
			text:  "Honey. A jar sits on rustic oak in warm morning light beside fresh bread",
			limit: 60,
			want:  "Honey. A jar sits on rustic oak in warm morning light beside",
		},
		{
			name:  "decimal is not a sentence end",
			text:  "A bottle of 1.5 litres stands on a table near the window with a view",
			limit: 40,
			want:  "A bottle of 1.5 litres stands on a table",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateAtSentence(tt.text, tt.limit)
			testutil.AssertEqual(t, got, tt.want)
			testutil.AssertTrue(t, len([]rune(got)) <= tt.limit, "result exceeds limit")
		})
	}
}

func TestTruncateAtWord(t *testing.T) {
	tests := []struct {
		text  string
		limit int
		want  string
	}{
		{"blurry, low resolution, watermark", 24, "blurry, low resolution"},
		{"blurry, low resolution, watermark", 23, "blurry, low resolution"},
		{"blurry, low resolution, watermark", 21, "blurry, low"},
		{"supercalifragilistic", 5, "super"},
		{"fine", 10, "fine"},
	}
	for _, tt := range tests {
		testutil.AssertEqual(t, TruncateAtWord(tt.text, tt.limit), tt.want)
	}
}

func TestLimitSentences(t *testing.T) {
	tests := []struct {
		text string
		n    int
		want string
	}{
		{"One. Two. Three.", 2, "One. Two."},
		{"One. Two.", 2, "One. Two."},
		{"One! Two? Three", 2, "One! Two?"},
		{"One. Two", 2, "One. Two"},
		{`She said "stop." Then left. Fin.`, 1, `She said "stop."`},
		{"No terminator at all", 1, "No terminator at all"},
	}
	for _, tt := range tests {
		testutil.AssertEqual(t, LimitSentences(tt.text, tt.n), tt.want)
	}
}

func TestLimitWords(t *testing.T) {
	testutil.AssertEqual(t, LimitWords("Fresh  bread every day", 2), "Fresh bread")
	testutil.AssertEqual(t, LimitWords("Fresh bread", 2), "Fresh bread")
	testutil.AssertEqual(t, LimitWords("", 2), "")
}

func TestValidateIndices(t *testing.T) {
	tests := []struct {
		name    string
		indices []int
		wantErr bool
	}{
		{"contiguous", []int{1, 2, 3}, false},
		{"empty", nil, false},
		{"gap", []int{1, 3}, true},
		{"duplicate", []int{1, 1}, true},
		{"zero based", []int{0, 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scenes := make([]core.GeneratedScene, len(tt.indices))
			for i, idx := range tt.indices {
				scenes[i].Index = idx
			}
			err := ValidateIndices(scenes)
			if tt.wantErr {
				testutil.AssertError(t, err)
				testutil.AssertTrue(t, core.IsCode(err, core.CodeSceneIndexIntegrity), "want SCENE_INDEX_INTEGRITY")
				return
			}
			testutil.AssertNoError(t, err)
		})
	}
}

func TestSentenceEnds(t *testing.T) {
	ends := sentenceEnds([]rune("Hi. What?! Done"))
	testutil.AssertLen(t, ends, 2)
	testutil.AssertEqual(t, ends[0], 3)
	testutil.AssertEqual(t, ends[1], 10)
}
