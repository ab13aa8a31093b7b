package workflow

import (
	"time"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/core"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/service"
)

// AgentEvent describes one finished agent invocation, successful or not.
type AgentEvent struct {
	Scene     core.SceneInfo
	AgentID   string
	Role      string
	Final     bool
	Attempt   int
	TokensIn  int
	TokensOut int
	Duration  time.Duration
	Err       error
}

// Degradation is a coercion that lost structure: raw text stored in place of
// JSON, or a value that failed its declared schema.
type Degradation struct {
	Scene   core.SceneInfo
	AgentID string
	Key     string
	Reason  string
}

// Observer receives progress updates from a generation session.
// Implementations must be safe for concurrent use: parallel mode reports
// agent events from several goroutines.
type Observer interface {
	// SceneStarted is called before the first agent of a scene runs.
	SceneStarted(scene core.SceneInfo)
	// AgentCompleted is called after every agent invocation.
	AgentCompleted(event AgentEvent)
	// Degraded is called when a response could only be partially coerced.
	Degraded(d Degradation)
	// RetryTriggered is called before the final agent is regenerated.
	RetryTriggered(scene core.SceneInfo, attempt int, violations []string)
	// SceneCompleted is called when a scene is done; err is set on failure.
	SceneCompleted(scene core.SceneInfo, result *core.GeneratedScene, err error)
}

// NopObserver is a no-op implementation of Observer.
type NopObserver struct{}

func (NopObserver) SceneStarted(core.SceneInfo)                                {}
func (NopObserver) AgentCompleted(AgentEvent)                                  {}
func (NopObserver) Degraded(Degradation)                                       {}
func (NopObserver) RetryTriggered(core.SceneInfo, int, []string)               {}
func (NopObserver) SceneCompleted(core.SceneInfo, *core.GeneratedScene, error) {}

// MultiObserver fans every event out to each observer in turn.
type MultiObserver []Observer

func (m MultiObserver) SceneStarted(scene core.SceneInfo) {
	for _, o := range m {
		o.SceneStarted(scene)
	}
}

func (m MultiObserver) AgentCompleted(event AgentEvent) {
	for _, o := range m {
		o.AgentCompleted(event)
	}
}

func (m MultiObserver) Degraded(d Degradation) {
	for _, o := range m {
		o.Degraded(d)
	}
}

func (m MultiObserver) RetryTriggered(scene core.SceneInfo, attempt int, violations []string) {
	for _, o := range m {
		o.RetryTriggered(scene, attempt, violations)
	}
}

func (m MultiObserver) SceneCompleted(scene core.SceneInfo, result *core.GeneratedScene, err error) {
	for _, o := range m {
		o.SceneCompleted(scene, result, err)
	}
}

// MetricsObserver feeds session events into a metrics collector.
type MetricsObserver struct {
	metrics *service.MetricsCollector
}

// NewMetricsObserver creates an observer recording into metrics.
func NewMetricsObserver(metrics *service.MetricsCollector) *MetricsObserver {
	return &MetricsObserver{metrics: metrics}
}

func (m *MetricsObserver) SceneStarted(scene core.SceneInfo) {
	m.metrics.StartScene(scene.Index, scene.Purpose)
}

func (m *MetricsObserver) AgentCompleted(event AgentEvent) {
	m.metrics.RecordAgentCall(service.AgentCall{
		SceneIndex: event.Scene.Index,
		Agent:      event.AgentID,
		TokensIn:   event.TokensIn,
		TokensOut:  event.TokensOut,
		Duration:   event.Duration,
		Err:        event.Err,
	})
}

func (m *MetricsObserver) Degraded(d Degradation) {
	m.metrics.RecordDegradation(d.Scene.Index, d.AgentID)
}

func (m *MetricsObserver) RetryTriggered(scene core.SceneInfo, _ int, _ []string) {
	m.metrics.RecordRetry(scene.Index)
}

func (m *MetricsObserver) SceneCompleted(scene core.SceneInfo, _ *core.GeneratedScene, err error) {
	m.metrics.EndScene(scene.Index, err)
}
