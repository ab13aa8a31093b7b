package workflow

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/core"
)

// historyPromptChars bounds how much of an earlier image prompt is repeated
// into later prompts.
const historyPromptChars = 160

// SessionContext holds cross-scene state for one generation session: the
// plan and a summary of every finished scene. It is passed by reference and
// reset when a session starts.
type SessionContext struct {
	mu     sync.Mutex
	plan   []core.SceneInfo
	scenes []core.GeneratedScene
}

// NewSessionContext creates an empty session context.
func NewSessionContext() *SessionContext {
	return &SessionContext{}
}

// Reset clears the plan and scene history.
func (c *SessionContext) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.plan = nil
	c.scenes = nil
}

// RecordPlan stores the scene plan.
func (c *SessionContext) RecordPlan(plan []core.SceneInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.plan = slices.Clone(plan)
}

// Plan returns a copy of the recorded plan.
func (c *SessionContext) Plan() []core.SceneInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.plan)
}

// RecordScene appends a finished scene to the history.
func (c *SessionContext) RecordScene(scene core.GeneratedScene) {
	c.mu.Lock()
	defer c.mu.Unlock()
	scene.AgentContributions = nil
	c.scenes = append(c.scenes, scene)
}

// SceneCount returns the number of finished scenes.
func (c *SessionContext) SceneCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.scenes)
}

// History returns one line per finished scene, for continuity prompts.
func (c *SessionContext) History() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.scenes) == 0 {
		return nil
	}
	lines := make([]string, 0, len(c.scenes))
	for _, s := range c.scenes {
		line := fmt.Sprintf("Scene %d (%s): %s", s.Index, s.Purpose, clip(s.ImagePrompt, historyPromptChars))
		if s.OnScreenText != "" {
			line += fmt.Sprintf(" [text: %s]", s.OnScreenText)
		}
		lines = append(lines, line)
	}
	return lines
}

func clip(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
