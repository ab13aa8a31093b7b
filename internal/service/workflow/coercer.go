package workflow

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/core"
)

// CoercionPath names the step of the fallback chain that recovered a
// response.
type CoercionPath string

const (
	PathJSON         CoercionPath = "json"
	PathFenced       CoercionPath = "fenced"
	PathExtracted    CoercionPath = "extracted"
	PathUnstructured CoercionPath = "unstructured"
)

// codeFenceRe matches a response wrapped in a single markdown code fence.
var codeFenceRe = regexp.MustCompile("(?s)^```[\\w-]*[ \\t]*\\n?(.*?)\\n?[ \\t]*```$")

// Coercion is the structured form of one agent response.
type Coercion struct {
	// Payloads holds one entry per declared output key.
	Payloads map[string]core.Payload
	// Object is the decoded response object, nil when none was recovered.
	Object map[string]any
	Path   CoercionPath
}

// Degraded reports whether the response fell back to raw text.
func (c *Coercion) Degraded() bool {
	return c.Path == PathUnstructured
}

// Output returns the payloads as plain values, for audit records.
func (c *Coercion) Output() map[string]any {
	return core.SharedState(c.Payloads).Snapshot()
}

// CoerceResponse turns free-form model text into payloads keyed by keys.
// The chain is: the whole trimmed text as JSON, the text inside a code fence,
// the first balanced {...} block, and finally the raw text stored as an
// unstructured value under every key.
func CoerceResponse(text string, keys []string) *Coercion {
	value, path, ok := decodeJSON(text)
	if !ok {
		raw := strings.TrimSpace(text)
		payloads := make(map[string]core.Payload, len(keys))
		for _, k := range keys {
			payloads[k] = core.Unstructured(raw)
		}
		return &Coercion{Payloads: payloads, Path: PathUnstructured}
	}

	obj, _ := value.(map[string]any)
	return &Coercion{
		Payloads: distribute(value, obj, keys),
		Object:   obj,
		Path:     path,
	}
}

// distribute maps a decoded value onto the declared keys. Keys present in
// the object take their own value. When the object carries none of them, or
// the value is not an object, the whole value is stored under every key.
func distribute(value any, obj map[string]any, keys []string) map[string]core.Payload {
	payloads := make(map[string]core.Payload, len(keys))
	if obj != nil {
		for _, k := range keys {
			if v, ok := obj[k]; ok {
				payloads[k] = core.Structured(v)
			}
		}
		if len(payloads) > 0 {
			return payloads
		}
	}
	for _, k := range keys {
		payloads[k] = core.Structured(value)
	}
	return payloads
}

// CoerceFinal recovers the scene object from the final agent's response.
// Raw text is never accepted: the chain stops after block extraction and the
// object must carry a non-empty image prompt.
func CoerceFinal(text string) (map[string]any, CoercionPath, bool) {
	value, path, ok := decodeJSON(text)
	if !ok {
		return nil, "", false
	}
	obj := sceneObject(value)
	if obj == nil || stringField(obj, imagePromptKeys...) == "" {
		return nil, path, false
	}
	return obj, path, true
}

// sceneObject finds the scene within a decoded value: the object itself, a
// single nested object such as {"scene": {...}}, or the first element of an
// array.
func sceneObject(value any) map[string]any {
	switch v := value.(type) {
	case map[string]any:
		if stringField(v, imagePromptKeys...) != "" {
			return v
		}
		for _, key := range []string{"scene", "finalScene", "final_scene", "output", "result"} {
			if nested, ok := v[key].(map[string]any); ok {
				return nested
			}
		}
		return v
	case []any:
		if len(v) > 0 {
			return sceneObject(v[0])
		}
	}
	return nil
}

func decodeJSON(text string) (any, CoercionPath, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, "", false
	}
	if v, ok := unmarshal(trimmed); ok {
		return v, PathJSON, true
	}
	if m := codeFenceRe.FindStringSubmatch(trimmed); len(m) > 1 {
		if v, ok := unmarshal(strings.TrimSpace(m[1])); ok {
			return v, PathFenced, true
		}
	}
	if block := firstObject(trimmed); block != "" {
		if v, ok := unmarshal(block); ok {
			return v, PathExtracted, true
		}
	}
	return nil, "", false
}

func unmarshal(s string) (any, bool) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	return v, true
}

// firstObject returns the first balanced top-level {...} block in s,
// skipping braces inside JSON strings.
func firstObject(s string) string {
	start := strings.IndexByte(s, '{')
	for start != -1 {
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(s); i++ {
			c := s[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
		// Unbalanced from this brace; try the next one.
		next := strings.IndexByte(s[start+1:], '{')
		if next == -1 {
			return ""
		}
		start += next + 1
	}
	return ""
}
