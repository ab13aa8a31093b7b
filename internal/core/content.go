package core

import (
	"encoding/json"
	"maps"
	"slices"
	"sort"
	"strings"
)

// PayloadKind discriminates structured from unstructured agent output.
type PayloadKind int

const (
	// PayloadStructured holds a decoded JSON value.
	PayloadStructured PayloadKind = iota
	// PayloadUnstructured holds raw model prose that could not be parsed.
	PayloadUnstructured
)

func (k PayloadKind) String() string {
	if k == PayloadUnstructured {
		return "unstructured"
	}
	return "structured"
}

// Payload is one value in shared state. "The model returned prose" is its
// own case rather than a string indistinguishable from valid data.
type Payload struct {
	Kind  PayloadKind
	Value any
	Text  string
}

// Structured wraps a decoded JSON value.
func Structured(v any) Payload {
	return Payload{Kind: PayloadStructured, Value: v}
}

// Unstructured wraps raw text.
func Unstructured(text string) Payload {
	return Payload{Kind: PayloadUnstructured, Text: text}
}

// IsUnstructured reports whether the payload is raw text.
func (p Payload) IsUnstructured() bool {
	return p.Kind == PayloadUnstructured
}

// Any returns the plain value: the decoded value or the raw text.
func (p Payload) Any() any {
	if p.Kind == PayloadUnstructured {
		return p.Text
	}
	return p.Value
}

// MarshalJSON renders the payload as its plain value.
func (p Payload) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Any())
}

// SharedState is the per-scene map of named values agents read and write.
type SharedState map[string]Payload

// NewSharedState seeds a state with the input payload.
func NewSharedState(input map[string]any) SharedState {
	return SharedState{InputKey: Structured(input)}
}

// Merge copies every entry of other into s, overwriting existing keys.
func (s SharedState) Merge(other map[string]Payload) {
	for k, v := range other {
		s[k] = v
	}
}

// Clone returns a shallow copy.
func (s SharedState) Clone() SharedState {
	return maps.Clone(s)
}

// Restrict returns a copy holding the input key plus the named keys that
// exist in s.
func (s SharedState) Restrict(keys []string) SharedState {
	out := make(SharedState, len(keys)+1)
	if in, ok := s[InputKey]; ok {
		out[InputKey] = in
	}
	for _, k := range keys {
		if v, ok := s[k]; ok {
			out[k] = v
		}
	}
	return out
}

// Snapshot returns the state as plain values, for audit records and prompts.
func (s SharedState) Snapshot() map[string]any {
	out := make(map[string]any, len(s))
	for k, v := range s {
		out[k] = v.Any()
	}
	return out
}

// Keys returns the sorted keys, input first.
func (s SharedState) Keys() []string {
	keys := slices.Collect(maps.Keys(s))
	sort.Slice(keys, func(i, j int) bool {
		if keys[i] == InputKey {
			return keys[j] != InputKey
		}
		if keys[j] == InputKey {
			return false
		}
		return keys[i] < keys[j]
	})
	return keys
}

// ScenePolicy bounds the scene plan and its ordering rules.
type ScenePolicy struct {
	MinScenes             int      `json:"minScenes" yaml:"min_scenes"`
	MaxScenes             int      `json:"maxScenes" yaml:"max_scenes"`
	MustStartStrong       bool     `json:"mustStartStrong" yaml:"must_start_strong"`
	MustEndWithClosure    bool     `json:"mustEndWithClosure" yaml:"must_end_with_closure"`
	AvoidRepetition       bool     `json:"avoidRepetition" yaml:"avoid_repetition"`
	PlatformAwareOrdering bool     `json:"platformAwareOrdering" yaml:"platform_aware_ordering"`
	Purposes              []string `json:"purposes,omitempty" yaml:"purposes"`
	OpeningType           string   `json:"openingType,omitempty" yaml:"opening_type"`
}

// ApplyDefaults fills zero values. A max below min is raised to min.
func (p *ScenePolicy) ApplyDefaults() {
	if p.MinScenes <= 0 {
		p.MinScenes = 1
	}
	if p.MaxScenes <= 0 {
		p.MaxScenes = max(p.MinScenes, DefaultMaxScenes)
	}
	if p.MaxScenes < p.MinScenes {
		p.MaxScenes = p.MinScenes
	}
	if p.OpeningType == "" {
		if len(p.Purposes) > 0 {
			p.OpeningType = p.Purposes[0]
		} else {
			p.OpeningType = DefaultOpeningType
		}
	}
}

// OutputContract is the set of limits a finished scene must satisfy.
type OutputContract struct {
	ImagePromptMaxChars     int      `json:"imagePromptMaxChars" yaml:"image_prompt_max_chars"`
	MaxSentencesImagePrompt int      `json:"maxSentencesImagePrompt" yaml:"max_sentences_image_prompt"`
	NegativesMaxChars       int      `json:"negativesMaxChars" yaml:"negatives_max_chars"`
	MaxWordsOnScreenText    int      `json:"maxWordsOnScreenText" yaml:"max_words_on_screen_text"`
	CameraPresets           []string `json:"cameraPresets" yaml:"camera_presets"`
	BannedTerms             []string `json:"bannedTerms,omitempty" yaml:"banned_terms"`
	ShotLibrary             []string `json:"shotLibrary,omitempty" yaml:"shot_library"`
}

// ApplyDefaults fills zero limits and empty lists with package defaults.
func (c *OutputContract) ApplyDefaults() {
	if c.ImagePromptMaxChars <= 0 {
		c.ImagePromptMaxChars = DefaultImagePromptMaxChars
	}
	if c.MaxSentencesImagePrompt <= 0 {
		c.MaxSentencesImagePrompt = DefaultMaxSentencesImagePrompt
	}
	if c.NegativesMaxChars <= 0 {
		c.NegativesMaxChars = DefaultNegativesMaxChars
	}
	if c.MaxWordsOnScreenText <= 0 {
		c.MaxWordsOnScreenText = DefaultMaxWordsOnScreenText
	}
	if len(c.CameraPresets) == 0 {
		c.CameraPresets = slices.Clone(DefaultCameraPresets)
	}
	if c.BannedTerms == nil {
		c.BannedTerms = slices.Clone(DefaultBannedTerms)
	}
}

// Inputs are the user-supplied generation inputs.
type Inputs struct {
	Product     string            `json:"product"`
	Description string            `json:"description,omitempty"`
	Offer       string            `json:"offer,omitempty"`
	Audience    string            `json:"audience,omitempty"`
	Platform    string            `json:"platform,omitempty"`
	Tone        string            `json:"tone,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// Normalize trims every field and lowercases platform and tone.
func (in Inputs) Normalize() Inputs {
	out := Inputs{
		Product:     strings.TrimSpace(in.Product),
		Description: strings.TrimSpace(in.Description),
		Offer:       strings.TrimSpace(in.Offer),
		Audience:    strings.TrimSpace(in.Audience),
		Platform:    strings.ToLower(strings.TrimSpace(in.Platform)),
		Tone:        strings.ToLower(strings.TrimSpace(in.Tone)),
	}
	if len(in.Extra) > 0 {
		out.Extra = make(map[string]string, len(in.Extra))
		for k, v := range in.Extra {
			k = strings.TrimSpace(k)
			if k == "" {
				continue
			}
			out.Extra[k] = strings.TrimSpace(v)
		}
	}
	return out
}

// Validate checks that the inputs carry enough to generate from.
func (in Inputs) Validate() error {
	if in.Product == "" && in.Description == "" {
		return ErrValidation(CodeInvalidInputs, "product or description is required")
	}
	return nil
}

// Map returns the inputs as a plain map, omitting empty fields.
func (in Inputs) Map() map[string]any {
	out := map[string]any{}
	set := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	set("product", in.Product)
	set("description", in.Description)
	set("offer", in.Offer)
	set("audience", in.Audience)
	set("platform", in.Platform)
	set("tone", in.Tone)
	for k, v := range in.Extra {
		if _, taken := out[k]; !taken {
			set(k, v)
		}
	}
	return out
}

// ContentTypeDefinition bundles everything needed to generate one kind of
// creative brief.
type ContentTypeDefinition struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Strategy  string         `json:"strategy"`
	Policy    ScenePolicy    `json:"policy"`
	Contract  OutputContract `json:"contract"`
	Rendering RenderingSpec  `json:"rendering"`
	Workflow  AgentWorkflow  `json:"workflow"`
}
