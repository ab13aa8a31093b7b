package workflow

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/core"
)

// minTruncationWindow is the smallest trailing window searched for a
// sentence end when an image prompt is cut to length.
const minTruncationWindow = 20

// OutputEnforcer applies the output contract to finished scenes. Enforce is
// deterministic and idempotent.
type OutputEnforcer struct {
	contract core.OutputContract
	policy   core.ScenePolicy
}

// NewOutputEnforcer creates an enforcer. Defaults are applied to copies of
// contract and policy.
func NewOutputEnforcer(contract core.OutputContract, policy core.ScenePolicy) *OutputEnforcer {
	contract.ApplyDefaults()
	policy.ApplyDefaults()
	return &OutputEnforcer{contract: contract, policy: policy}
}

// Enforce mutates scene to satisfy the contract.
func (e *OutputEnforcer) Enforce(scene *core.GeneratedScene) {
	scene.ShotType = strings.TrimSpace(scene.ShotType)
	scene.ImagePrompt = strings.TrimSpace(scene.ImagePrompt)
	scene.NegativePrompt = strings.TrimSpace(scene.NegativePrompt)
	scene.Camera = strings.TrimSpace(scene.Camera)
	scene.Environment = strings.TrimSpace(scene.Environment)
	scene.OnScreenText = strings.TrimSpace(scene.OnScreenText)
	scene.CompositionNotes = strings.TrimSpace(scene.CompositionNotes)

	opening := scene.Index == 1
	switch {
	case opening && e.policy.MustStartStrong:
		scene.ShotType = e.policy.OpeningType
	case scene.ShotType != "":
	case opening:
		scene.ShotType = e.policy.OpeningType
	case len(e.contract.ShotLibrary) > 0:
		scene.ShotType = e.contract.ShotLibrary[0]
	default:
		scene.ShotType = core.DefaultShotType
	}

	if scene.ImagePrompt == "" {
		scene.ImagePrompt = defaultImagePrompt(scene)
	}
	scene.ImagePrompt = LimitSentences(scene.ImagePrompt, e.contract.MaxSentencesImagePrompt)
	scene.ImagePrompt = TruncateAtSentence(scene.ImagePrompt, e.contract.ImagePromptMaxChars)
	scene.NegativePrompt = TruncateAtWord(scene.NegativePrompt, e.contract.NegativesMaxChars)
	scene.OnScreenText = LimitWords(scene.OnScreenText, e.contract.MaxWordsOnScreenText)
	scene.Camera = e.canonicalCamera(scene.Camera)
}

func defaultImagePrompt(scene *core.GeneratedScene) string {
	prompt := fmt.Sprintf("A still image for the %s scene.", strings.ToLower(scene.Purpose))
	if scene.Environment != "" {
		prompt += " " + strings.TrimRight(scene.Environment, ".") + "."
	}
	return prompt
}

// canonicalCamera returns the preset matching camera case-insensitively, or
// the first preset.
func (e *OutputEnforcer) canonicalCamera(camera string) string {
	for _, preset := range e.contract.CameraPresets {
		if strings.EqualFold(preset, camera) {
			return preset
		}
	}
	return e.contract.CameraPresets[0]
}

// ValidateIndices checks that scenes are indexed 1..n in order.
func ValidateIndices(scenes []core.GeneratedScene) error {
	seen := make(map[int]bool, len(scenes))
	for i, s := range scenes {
		if seen[s.Index] {
			return core.ErrSceneIndexIntegrity(fmt.Sprintf("scene index %d appears twice", s.Index))
		}
		seen[s.Index] = true
		if s.Index != i+1 {
			return core.ErrSceneIndexIntegrity(fmt.Sprintf("scene at position %d has index %d", i+1, s.Index))
		}
	}
	return nil
}

// LimitSentences keeps the first n sentences of text. Text within the limit
// is returned unchanged.
func LimitSentences(text string, n int) string {
	if n <= 0 {
		return text
	}
	ends := sentenceEnds([]rune(text))
	if len(ends) < n {
		return text
	}
	// A trailing fragment without terminator counts as a sentence.
	r := []rune(text)
	if len(ends) == n && strings.TrimSpace(string(r[ends[n-1]:])) == "" {
		return text
	}
	return strings.TrimSpace(string(r[:ends[n-1]]))
}

// TruncateAtSentence cuts text to at most limit runes. It prefers the last
// sentence end within a trailing window of max(limit/5, 20) runes and
// otherwise cuts at the last word boundary. Words are never split unless a
// single word exceeds the limit.
func TruncateAtSentence(text string, limit int) string {
	r := []rune(text)
	if limit <= 0 || len(r) <= limit {
		return text
	}
	window := max(limit/5, minTruncationWindow)
	best := -1
	for _, end := range sentenceEnds(r) {
		if end > limit {
			break
		}
		best = end
	}
	if best >= limit-window && best > 0 {
		return strings.TrimSpace(string(r[:best]))
	}
	return TruncateAtWord(text, limit)
}

// TruncateAtWord cuts text to at most limit runes at a word boundary.
func TruncateAtWord(text string, limit int) string {
	r := []rune(text)
	if limit <= 0 || len(r) <= limit {
		return text
	}
	cut := -1
	if unicode.IsSpace(r[limit]) {
		cut = limit
	} else {
		for i := limit - 1; i > 0; i-- {
			if unicode.IsSpace(r[i]) {
				cut = i
				break
			}
		}
	}
	if cut <= 0 {
		return string(r[:limit])
	}
	return strings.TrimRightFunc(string(r[:cut]), func(c rune) bool {
		return unicode.IsSpace(c) || c == ',' || c == ';' || c == ':' || c == '-'
	})
}

// LimitWords keeps the first n words of text. Text within the limit is
// returned unchanged.
func LimitWords(text string, n int) string {
	words := strings.Fields(text)
	if n <= 0 || len(words) <= n {
		return text
	}
	return strings.Join(words[:n], " ")
}

// sentenceEnds returns the rune offsets just past each sentence terminator
// (with any closing quotes or brackets) that is followed by whitespace or
// the end of text.
func sentenceEnds(r []rune) []int {
	var ends []int
	for i := 0; i < len(r); i++ {
		if r[i] != '.' && r[i] != '!' && r[i] != '?' {
			continue
		}
		j := i + 1
		for j < len(r) && (r[j] == '.' || r[j] == '!' || r[j] == '?') {
			j++
		}
		for j < len(r) && strings.ContainsRune(`"')]”’`, r[j]) {
			j++
		}
		if j == len(r) || unicode.IsSpace(r[j]) {
			ends = append(ends, j)
		}
		i = j - 1
	}
	return ends
}
