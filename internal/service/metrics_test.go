package service_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/service"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/testutil"
)

func TestMetricsCollector_Session(t *testing.T) {
	collector := service.NewMetricsCollector()

	collector.StartSession("sess-1")
	time.Sleep(5 * time.Millisecond)
	collector.EndSession()

	metrics := collector.GetSessionMetrics()
	testutil.AssertEqual(t, metrics.SessionID, "sess-1")
	testutil.AssertTrue(t, metrics.TotalDuration > 0, "duration should be positive")
	testutil.AssertTrue(t, !metrics.StartTime.IsZero(), "start time should be set")
	testutil.AssertTrue(t, !metrics.EndTime.IsZero(), "end time should be set")

	collector.SetSessionID("sess-2")
	testutil.AssertEqual(t, collector.GetSessionMetrics().SessionID, "sess-2")
}

func TestMetricsCollector_SceneTracking(t *testing.T) {
	collector := service.NewMetricsCollector()

	collector.StartScene(1, "hook")
	collector.RecordAgentCall(service.AgentCall{SceneIndex: 1, Agent: "copywriter", TokensIn: 100, TokensOut: 50, Duration: time.Second})
	collector.RecordAgentCall(service.AgentCall{SceneIndex: 1, Agent: "assembler", TokensIn: 10, TokensOut: 5})
	collector.EndScene(1, nil)

	sm := collector.GetSessionMetrics()
	testutil.AssertEqual(t, sm.ScenesTotal, 1)
	testutil.AssertEqual(t, sm.ScenesCompleted, 1)
	testutil.AssertEqual(t, sm.TotalTokensIn, 110)
	testutil.AssertEqual(t, sm.TotalTokensOut, 55)

	scene, ok := collector.GetSceneMetrics(1)
	testutil.AssertTrue(t, ok, "scene metrics should exist")
	testutil.AssertEqual(t, scene.AgentCalls, 2)
	testutil.AssertTrue(t, scene.Success, "scene should be successful")

	_, ok = collector.GetSceneMetrics(9)
	testutil.AssertFalse(t, ok, "unknown scene")
}

func TestMetricsCollector_SceneFailed(t *testing.T) {
	collector := service.NewMetricsCollector()

	collector.StartScene(2, "benefit")
	collector.EndScene(2, testutil.ErrTest)
	collector.EndScene(7, nil)

	sm := collector.GetSessionMetrics()
	testutil.AssertEqual(t, sm.ScenesFailed, 1)
	testutil.AssertEqual(t, sm.ScenesCompleted, 0)

	scene, _ := collector.GetSceneMetrics(2)
	testutil.AssertFalse(t, scene.Success, "scene should have failed")
	testutil.AssertEqual(t, scene.ErrorMsg, testutil.ErrTest.Error())
}

func TestMetricsCollector_RetriesAndDegradations(t *testing.T) {
	collector := service.NewMetricsCollector()

	collector.StartScene(1, "hook")
	collector.RecordRetry(1)
	collector.RecordRetry(3)
	collector.RecordDegradation(1, "copywriter")

	sm := collector.GetSessionMetrics()
	testutil.AssertEqual(t, sm.RetriesTotal, 2)
	testutil.AssertEqual(t, sm.Degradations, 1)

	scene, _ := collector.GetSceneMetrics(1)
	testutil.AssertEqual(t, scene.Retries, 1)
	testutil.AssertEqual(t, scene.Degradations, 1)
	testutil.AssertEqual(t, collector.GetAgentMetrics()["copywriter"].Degradations, 1)
}

func TestMetricsCollector_AgentMetrics(t *testing.T) {
	collector := service.NewMetricsCollector()

	for i := 0; i < 3; i++ {
		collector.RecordAgentCall(service.AgentCall{Agent: "strategist", TokensIn: 100, TokensOut: 50, Duration: 30 * time.Millisecond})
	}
	collector.RecordAgentCall(service.AgentCall{Agent: "strategist", Err: testutil.ErrTest})

	am := collector.GetAgentMetrics()["strategist"]
	testutil.AssertEqual(t, am.Invocations, 4)
	testutil.AssertEqual(t, am.TotalTokensIn, 300)
	testutil.AssertEqual(t, am.AvgTokensIn, 75)
	testutil.AssertEqual(t, am.Errors, 1)
	testutil.AssertEqual(t, am.AvgDuration, 22500*time.Microsecond)
}

func TestMetricsCollector_SceneOrder(t *testing.T) {
	collector := service.NewMetricsCollector()
	for _, i := range []int{3, 1, 2} {
		collector.StartScene(i, "x")
	}
	scenes := collector.GetAllSceneMetrics()
	testutil.AssertLen(t, scenes, 3)
	for i, sm := range scenes {
		testutil.AssertEqual(t, sm.Index, i+1)
	}
}

func TestMetricsCollector_Reset(t *testing.T) {
	collector := service.NewMetricsCollector()
	collector.StartScene(1, "hook")
	collector.RecordAgentCall(service.AgentCall{SceneIndex: 1, Agent: "a", TokensIn: 100})

	collector.Reset()

	sm := collector.GetSessionMetrics()
	testutil.AssertEqual(t, sm.ScenesTotal, 0)
	testutil.AssertEqual(t, sm.TotalTokensIn, 0)
	testutil.AssertEqual(t, len(collector.GetAgentMetrics()), 0)
}

func newPopulatedCollector() *service.MetricsCollector {
	collector := service.NewMetricsCollector()
	collector.StartSession("123e4567-e89b-12d3-a456-426614174000")
	collector.StartScene(1, "hook")
	collector.RecordAgentCall(service.AgentCall{SceneIndex: 1, Agent: "copywriter", TokensIn: 100, TokensOut: 50})
	collector.RecordRetry(1)
	collector.EndScene(1, nil)
	collector.EndSession()
	return collector
}

func TestReportGenerator_TextReport(t *testing.T) {
	generator := service.NewReportGenerator(newPopulatedCollector())

	var buf bytes.Buffer
	testutil.AssertNoError(t, generator.GenerateTextReport(&buf))

	report := testutil.ScrubAll(buf.String())
	testutil.AssertContains(t, report, "SESSION REPORT")
	testutil.AssertContains(t, report, "Session:          [UUID]")
	testutil.AssertContains(t, report, "TOKEN USAGE")
	testutil.AssertContains(t, report, "AGENT METRICS")
	testutil.AssertContains(t, report, "copywriter")
	testutil.AssertContains(t, report, "SCENE METRICS")
	testutil.AssertContains(t, report, "hook")
}

func TestReportGenerator_JSONReport(t *testing.T) {
	generator := service.NewReportGenerator(newPopulatedCollector())

	var buf bytes.Buffer
	testutil.AssertNoError(t, generator.GenerateJSONReport(&buf))

	report := buf.String()
	testutil.AssertContains(t, report, "generated_at")
	testutil.AssertContains(t, report, `"session"`)
	testutil.AssertContains(t, report, `"scenes"`)
	testutil.AssertContains(t, report, `"agents"`)
}

func TestReportGenerator_Summary(t *testing.T) {
	generator := service.NewReportGenerator(newPopulatedCollector())
	summary := generator.GenerateSummary()

	testutil.AssertContains(t, summary, "Duration:")
	testutil.AssertContains(t, summary, "Scenes: 1/1")
	testutil.AssertContains(t, summary, "Tokens: 150")
	testutil.AssertContains(t, summary, "Regenerations: 1")
}
