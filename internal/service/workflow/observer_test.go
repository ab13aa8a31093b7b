package workflow

import (
	"sync"
	"testing"
	"time"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/core"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/service"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/testutil"
)

// recordingObserver captures events for assertions.
type recordingObserver struct {
	mu           sync.Mutex
	started      []int
	agents       []AgentEvent
	degradations []Degradation
	retries      []int
	completed    []int
	failures     []error
}

func (r *recordingObserver) SceneStarted(scene core.SceneInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, scene.Index)
}

func (r *recordingObserver) AgentCompleted(event AgentEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents = append(r.agents, event)
}

func (r *recordingObserver) Degraded(d Degradation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.degradations = append(r.degradations, d)
}

func (r *recordingObserver) RetryTriggered(scene core.SceneInfo, _ int, _ []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries = append(r.retries, scene.Index)
}

func (r *recordingObserver) SceneCompleted(scene core.SceneInfo, _ *core.GeneratedScene, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, scene.Index)
	if err != nil {
		r.failures = append(r.failures, err)
	}
}

func (r *recordingObserver) finalCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.agents {
		if e.Final {
			n++
		}
	}
	return n
}

func TestMultiObserver(t *testing.T) {
	a, b := &recordingObserver{}, &recordingObserver{}
	m := MultiObserver{a, NopObserver{}, b}
	scene := core.SceneInfo{Index: 2, Purpose: "benefit"}

	m.SceneStarted(scene)
	m.AgentCompleted(AgentEvent{Scene: scene, AgentID: "copy"})
	m.Degraded(Degradation{Scene: scene, AgentID: "copy", Key: "copy"})
	m.RetryTriggered(scene, 1, []string{"pan"})
	m.SceneCompleted(scene, nil, nil)

	for _, r := range []*recordingObserver{a, b} {
		testutil.AssertLen(t, r.started, 1)
		testutil.AssertLen(t, r.agents, 1)
		testutil.AssertLen(t, r.degradations, 1)
		testutil.AssertLen(t, r.retries, 1)
		testutil.AssertLen(t, r.completed, 1)
	}
}

func TestMetricsObserver(t *testing.T) {
	metrics := service.NewMetricsCollector()
	metrics.StartSession("s-1")
	obs := NewMetricsObserver(metrics)
	scene := core.SceneInfo{Index: 1, Purpose: "hook"}

	obs.SceneStarted(scene)
	obs.AgentCompleted(AgentEvent{Scene: scene, AgentID: "copy", TokensIn: 10, TokensOut: 5, Duration: time.Millisecond})
	obs.AgentCompleted(AgentEvent{Scene: scene, AgentID: "assembler", TokensIn: 20, TokensOut: 8, Duration: time.Millisecond, Final: true})
	obs.Degraded(Degradation{Scene: scene, AgentID: "copy", Key: "copy"})
	obs.RetryTriggered(scene, 1, []string{"pan"})
	obs.SceneCompleted(scene, &core.GeneratedScene{Index: 1}, nil)

	sm, ok := metrics.GetSceneMetrics(1)
	testutil.AssertTrue(t, ok, "scene metrics should exist")
	testutil.AssertEqual(t, sm.AgentCalls, 2)
	testutil.AssertEqual(t, sm.Retries, 1)
	testutil.AssertEqual(t, sm.Degradations, 1)
	testutil.AssertTrue(t, sm.Success, "scene should succeed")

	session := metrics.GetSessionMetrics()
	testutil.AssertEqual(t, session.TotalTokensIn, 30)
	testutil.AssertEqual(t, session.TotalTokensOut, 13)
}
