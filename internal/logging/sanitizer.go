package logging

import (
	"regexp"
)

// Sanitizer redacts provider credentials from log messages. Prompts and
// model responses pass through debug logs, so any key pasted into an input
// must not reach the log sink.
type Sanitizer struct {
	patterns []*regexp.Regexp
	redacted string
}

// NewSanitizer creates a sanitizer with the default credential patterns.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{
		patterns: credentialPatterns(),
		redacted: "[REDACTED]",
	}
}

func credentialPatterns() []*regexp.Regexp {
	patterns := []string{
		// Anthropic, checked before the broader OpenAI form
		`sk-ant-[a-zA-Z0-9-]{40,}`,
		// OpenAI, including project keys
		`sk-(?:proj-)?[A-Za-z0-9_-]{20,}`,
		// AWS access key id and secret
		`(?:AKIA|ASIA)[0-9A-Z]{16}`,
		`(?i)aws[_-]?secret[_-]?access[_-]?key["'\s:=]+[A-Za-z0-9/+=]{40}`,
		`(?i)x-amz-security-token["'\s:=]+[A-Za-z0-9/+=]{40,}`,
		// Authorization headers
		`(?i)bearer\s+[a-zA-Z0-9._-]{20,}`,
		// Generic key/secret/token assignments
		`(?i)api[_-]?key["'\s:=]+[a-zA-Z0-9_-]{20,}`,
		`(?i)secret["'\s:=]+[a-zA-Z0-9_-]{20,}`,
		`(?i)token["'\s:=]+[a-zA-Z0-9_-]{20,}`,
	}

	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return compiled
}

// Sanitize redacts sensitive information from a string.
func (s *Sanitizer) Sanitize(input string) string {
	result := input
	for _, pattern := range s.patterns {
		result = pattern.ReplaceAllString(result, s.redacted)
	}
	return result
}

// SanitizeMap redacts string values in a map, recursing into nested maps.
func (s *Sanitizer) SanitizeMap(m map[string]any) map[string]any {
	result := make(map[string]any, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case string:
			result[k] = s.Sanitize(val)
		case map[string]any:
			result[k] = s.SanitizeMap(val)
		default:
			result[k] = v
		}
	}
	return result
}

// AddPattern adds a custom pattern.
func (s *Sanitizer) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	s.patterns = append(s.patterns, re)
	return nil
}
