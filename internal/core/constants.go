// Package core provides the domain model, ports and error taxonomy for
// multi-agent scene generation. All packages import from here to keep
// defaults and limits consistent across the codebase.
package core

// InputKey is the reserved shared-state key holding normalized inputs and
// running metadata. Agents may read it but never write it.
const InputKey = "input"

// Generation strategies.
const (
	StrategyWorkflow     = "workflow"
	StrategySinglePrompt = "single_prompt"
)

// Default output contract limits.
const (
	DefaultImagePromptMaxChars     = 600
	DefaultMaxSentencesImagePrompt = 4
	DefaultNegativesMaxChars       = 200
	DefaultMaxWordsOnScreenText    = 8
)

// Default scene policy.
const (
	DefaultMinScenes   = 3
	DefaultMaxScenes   = 6
	DefaultOpeningType = "hook"
	DefaultShotType    = "medium shot"
)

// DefaultCameraPresets is used when a content type declares none.
var DefaultCameraPresets = []string{
	"eye-level medium shot",
	"close-up",
	"wide establishing shot",
	"overhead flat lay",
	"low angle hero shot",
	"over-the-shoulder",
}

// DefaultBannedTerms flags motion, editing and markdown vocabulary that has
// no meaning in a still image prompt. Entries are matched as whole words,
// case-insensitively; entries starting with "re:" are regular expressions.
var DefaultBannedTerms = []string{
	"zoom in",
	"zoom out",
	"pan",
	"panning",
	"tilt",
	"dolly",
	"tracking shot",
	"transition",
	"cut to",
	"fade in",
	"fade out",
	"slow motion",
	"timelapse",
	"voiceover",
	"b-roll",
	`re:(?m)^\s*#{1,6}\s`,
}

// DefaultPurposes is the purpose catalogue used to pad short plans when a
// content type declares no catalogue of its own.
var DefaultPurposes = []string{
	"hook",
	"problem",
	"product reveal",
	"benefit",
	"social proof",
	"call to action",
}

// PlatformAspectRatios maps a normalized platform to its native aspect ratio.
var PlatformAspectRatios = map[string]string{
	"tiktok":    "9:16",
	"reels":     "9:16",
	"shorts":    "9:16",
	"stories":   "9:16",
	"youtube":   "16:9",
	"instagram": "4:5",
	"facebook":  "1:1",
	"linkedin":  "1:1",
	"pinterest": "2:3",
}

// DefaultAspectRatio applies when the platform is unknown.
const DefaultAspectRatio = "1:1"

// ToneMoods maps a normalized tone to a rendering mood.
var ToneMoods = map[string]string{
	"playful":      "bright, energetic",
	"luxury":       "moody, refined",
	"premium":      "moody, refined",
	"friendly":     "warm, inviting",
	"professional": "clean, confident",
	"bold":         "high contrast, dramatic",
	"calm":         "soft, airy",
}

// DefaultVisualStyle applies when the content type declares none.
const DefaultVisualStyle = "photorealistic commercial photography"
