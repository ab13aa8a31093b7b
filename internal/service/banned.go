package service

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/core"
)

// BannedTermScan flags motion, editing and markdown vocabulary in the
// still-image fields of a scene.
type BannedTermScan struct {
	terms    []string
	patterns []*regexp.Regexp
}

// NewBannedTermScan compiles the banned terms. Plain terms match whole words
// case-insensitively; terms prefixed with "re:" are regular expressions.
func NewBannedTermScan(terms []string) (*BannedTermScan, error) {
	s := &BannedTermScan{}
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		var expr string
		if raw, ok := strings.CutPrefix(term, "re:"); ok {
			expr = raw
		} else {
			words := strings.Fields(regexp.QuoteMeta(term))
			expr = `(?i)(?:^|[^\pL\pN])` + strings.Join(words, `\s+`) + `(?:$|[^\pL\pN])`
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("compiling banned term %q: %w", term, err)
		}
		s.terms = append(s.terms, term)
		s.patterns = append(s.patterns, re)
	}
	return s, nil
}

// Name implements RetryTrigger.
func (s *BannedTermScan) Name() string {
	return "banned_terms"
}

// Check implements RetryTrigger. It returns the banned terms found in the
// image prompt, negative prompt and composition notes, each reported once.
func (s *BannedTermScan) Check(scene *core.GeneratedScene) []string {
	if scene == nil {
		return nil
	}
	return s.Scan(scene.ImagePrompt, scene.NegativePrompt, scene.CompositionNotes)
}

// Scan returns the banned terms present in any of texts.
func (s *BannedTermScan) Scan(texts ...string) []string {
	var found []string
	for i, re := range s.patterns {
		for _, text := range texts {
			if text != "" && re.MatchString(text) {
				found = append(found, s.terms[i])
				break
			}
		}
	}
	return found
}
