package service

import (
	"sort"
	"sync"
	"time"
)

// MetricsCollector collects generation session metrics.
type MetricsCollector struct {
	session SessionMetrics
	scenes  map[int]*SceneMetrics
	agents  map[string]*AgentMetrics
	mu      sync.RWMutex
}

// SessionMetrics holds session-level metrics.
type SessionMetrics struct {
	SessionID       string        `json:"session_id"`
	StartTime       time.Time     `json:"start_time"`
	EndTime         time.Time     `json:"end_time"`
	TotalDuration   time.Duration `json:"total_duration"`
	TotalTokensIn   int           `json:"total_tokens_in"`
	TotalTokensOut  int           `json:"total_tokens_out"`
	ScenesTotal     int           `json:"scenes_total"`
	ScenesCompleted int           `json:"scenes_completed"`
	ScenesFailed    int           `json:"scenes_failed"`
	RetriesTotal    int           `json:"retries_total"`
	Degradations    int           `json:"degradations"`
}

// SceneMetrics holds scene-level metrics.
type SceneMetrics struct {
	Index        int           `json:"index"`
	Purpose      string        `json:"purpose"`
	StartTime    time.Time     `json:"start_time"`
	EndTime      time.Time     `json:"end_time"`
	Duration     time.Duration `json:"duration"`
	AgentCalls   int           `json:"agent_calls"`
	Retries      int           `json:"retries"`
	Degradations int           `json:"degradations"`
	Success      bool          `json:"success"`
	ErrorMsg     string        `json:"error,omitempty"`
}

// AgentMetrics holds agent-level metrics.
type AgentMetrics struct {
	Name           string        `json:"name"`
	Invocations    int           `json:"invocations"`
	TotalTokensIn  int           `json:"total_tokens_in"`
	TotalTokensOut int           `json:"total_tokens_out"`
	TotalDuration  time.Duration `json:"total_duration"`
	AvgDuration    time.Duration `json:"avg_duration"`
	Errors         int           `json:"errors"`
	Degradations   int           `json:"degradations"`
	AvgTokensIn    int           `json:"avg_tokens_in"`
	AvgTokensOut   int           `json:"avg_tokens_out"`
}

// AgentCall is the outcome of one agent invocation.
type AgentCall struct {
	SceneIndex int
	Agent      string
	TokensIn   int
	TokensOut  int
	Duration   time.Duration
	Err        error
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		scenes: make(map[int]*SceneMetrics),
		agents: make(map[string]*AgentMetrics),
	}
}

// StartSession marks session start.
func (m *MetricsCollector) StartSession(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session.SessionID = sessionID
	m.session.StartTime = time.Now()
}

// SetSessionID names the session once the generation has assigned an id.
func (m *MetricsCollector) SetSessionID(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session.SessionID = sessionID
}

// EndSession marks session end.
func (m *MetricsCollector) EndSession() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session.EndTime = time.Now()
	m.session.TotalDuration = m.session.EndTime.Sub(m.session.StartTime)
}

// StartScene starts tracking a scene.
func (m *MetricsCollector) StartScene(index int, purpose string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.scenes[index] = &SceneMetrics{
		Index:     index,
		Purpose:   purpose,
		StartTime: time.Now(),
	}
	m.session.ScenesTotal++
}

// EndScene ends tracking a scene.
func (m *MetricsCollector) EndScene(index int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sm, ok := m.scenes[index]
	if !ok {
		return
	}
	sm.EndTime = time.Now()
	sm.Duration = sm.EndTime.Sub(sm.StartTime)

	if err != nil {
		sm.Success = false
		sm.ErrorMsg = err.Error()
		m.session.ScenesFailed++
	} else {
		sm.Success = true
		m.session.ScenesCompleted++
	}
}

// RecordAgentCall records one agent invocation.
func (m *MetricsCollector) RecordAgentCall(call AgentCall) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.session.TotalTokensIn += call.TokensIn
	m.session.TotalTokensOut += call.TokensOut
	if sm, ok := m.scenes[call.SceneIndex]; ok {
		sm.AgentCalls++
	}

	am := m.agent(call.Agent)
	am.Invocations++
	am.TotalTokensIn += call.TokensIn
	am.TotalTokensOut += call.TokensOut
	am.TotalDuration += call.Duration
	am.AvgDuration = am.TotalDuration / time.Duration(am.Invocations)
	am.AvgTokensIn = am.TotalTokensIn / am.Invocations
	am.AvgTokensOut = am.TotalTokensOut / am.Invocations
	if call.Err != nil {
		am.Errors++
	}
}

// RecordRetry records a scene regeneration.
func (m *MetricsCollector) RecordRetry(sceneIndex int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sm, ok := m.scenes[sceneIndex]; ok {
		sm.Retries++
	}
	m.session.RetriesTotal++
}

// RecordDegradation records a coercion that fell back to raw text or failed
// schema validation.
func (m *MetricsCollector) RecordDegradation(sceneIndex int, agent string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sm, ok := m.scenes[sceneIndex]; ok {
		sm.Degradations++
	}
	m.agent(agent).Degradations++
	m.session.Degradations++
}

func (m *MetricsCollector) agent(name string) *AgentMetrics {
	am, ok := m.agents[name]
	if !ok {
		am = &AgentMetrics{Name: name}
		m.agents[name] = am
	}
	return am
}

// GetSessionMetrics returns session metrics.
func (m *MetricsCollector) GetSessionMetrics() SessionMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

// GetSceneMetrics returns metrics for a specific scene.
func (m *MetricsCollector) GetSceneMetrics(index int) (*SceneMetrics, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sm, ok := m.scenes[index]
	if !ok {
		return nil, false
	}
	sceneCopy := *sm
	return &sceneCopy, true
}

// GetAllSceneMetrics returns metrics for all scenes, ordered by index.
func (m *MetricsCollector) GetAllSceneMetrics() []*SceneMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*SceneMetrics, 0, len(m.scenes))
	for _, sm := range m.scenes {
		sceneCopy := *sm
		result = append(result, &sceneCopy)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Index < result[j].Index })
	return result
}

// GetAgentMetrics returns metrics for all agents.
func (m *MetricsCollector) GetAgentMetrics() map[string]*AgentMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]*AgentMetrics)
	for k, v := range m.agents {
		agentCopy := *v
		result[k] = &agentCopy
	}
	return result
}

// Reset clears all metrics.
func (m *MetricsCollector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.session = SessionMetrics{}
	m.scenes = make(map[int]*SceneMetrics)
	m.agents = make(map[string]*AgentMetrics)
}
