package workflow

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/core"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/service"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/testutil"
)

const planResponse = `[{"index": 1, "purpose": "hook"}, {"index": 2, "purpose": "benefit"}, {"index": 3, "purpose": "call to action"}]`

func threeSceneContentType() *core.ContentTypeDefinition {
	return &core.ContentTypeDefinition{
		ID:   "ugc-ad",
		Name: "UGC ad",
		Policy: core.ScenePolicy{
			MinScenes:       3,
			MaxScenes:       3,
			MustStartStrong: true,
			Purposes:        []string{"hook", "benefit", "call to action"},
		},
		Workflow: core.AgentWorkflow{
			ExecutionOrder: core.ExecutionSequential,
			Agents: []core.AgentDefinition{
				{ID: "copy", Role: "copywriter", Order: 1},
				{ID: "assembler", Role: "scene assembler", Order: 2},
			},
		},
	}
}

func oatMilk() core.Inputs {
	return core.Inputs{Product: "  Oat milk ", Platform: "TikTok", Tone: "Playful"}
}

func newTestSession(t *testing.T, model core.Model, opts ...SessionOption) *GenerationSession {
	t.Helper()
	s, err := NewGenerationSession(model, opts...)
	require.NoError(t, err)
	return s
}

func TestGenerationSession_Workflow(t *testing.T) {
	router := testutil.NewRouter("{}").
		On("Produce between", planResponse).
		On("contributing as", `{"line": "Pour joy"}`).
		On("Assemble scene", cleanScene)
	model := routedModel(router)
	obs := &recordingObserver{}
	session := newTestSession(t, model, WithObserver(obs))

	result, err := session.Generate(context.Background(), GenerationRequest{
		ContentType: threeSceneContentType(),
		Inputs:      oatMilk(),
	})
	require.NoError(t, err)

	_, err = uuid.Parse(result.SessionID)
	assert.NoError(t, err, "session id should be a uuid")
	assert.Equal(t, "ugc-ad", result.ContentType)
	assert.Equal(t, core.StrategyWorkflow, result.Strategy)

	require.Len(t, result.Scenes, 3)
	for i, scene := range result.Scenes {
		assert.Equal(t, i+1, scene.Index)
		assert.Equal(t, result.Plan[i].Purpose, scene.Purpose)
		assert.NotEmpty(t, scene.ImagePrompt)
		assert.Contains(t, core.DefaultCameraPresets, scene.Camera)
		assert.Len(t, scene.AgentContributions, 2)
	}
	assert.Equal(t, "hook", result.Scenes[0].ShotType)

	assert.Equal(t, "9:16", result.RenderingSpec.AspectRatio)
	assert.Equal(t, "bright, energetic", result.RenderingSpec.Mood)
	assert.Equal(t, core.DefaultVisualStyle, result.RenderingSpec.VisualStyle)

	// One planner call plus two agents per scene.
	assert.Equal(t, 7, model.CallCount(""))
	assert.Equal(t, 1, model.CallCount("Produce between"))
	assert.Equal(t, []int{1, 2, 3}, obs.started)
	assert.Equal(t, []int{1, 2, 3}, obs.completed)
	assert.Empty(t, obs.failures)

	assert.Len(t, session.Context().Plan(), 3)
	assert.Equal(t, 3, session.Context().SceneCount())

	// The scene brief reaches every agent through the input entry.
	for _, prompt := range promptsFor(model, "contributing as") {
		assert.Contains(t, prompt, `"maxWordsOnScreenText"`)
		assert.Contains(t, prompt, `"product": "Oat milk"`)
	}
}

func TestGenerationSession_EveryExecutionMode(t *testing.T) {
	const scatteredPlan = `[{"index": 4, "purpose": "hook"}, {"index": 9, "purpose": "benefit"},
		{"index": 2, "purpose": "social proof"}, {"index": 7, "purpose": "call to action"},
		{"index": 5, "purpose": "extra"}]`

	tests := []struct {
		name   string
		order  core.ExecutionOrder
		agents []core.AgentDefinition
	}{
		{
			name:  "sequential",
			order: core.ExecutionSequential,
			agents: []core.AgentDefinition{
				{ID: "strategy", Role: "strategist", Order: 1},
				{ID: "copy", Role: "copywriter", Order: 2},
				{ID: "assembler", Role: "scene assembler", Order: 3},
			},
		},
		{
			name:  "parallel",
			order: core.ExecutionParallel,
			agents: []core.AgentDefinition{
				{ID: "strategy", Role: "strategist", Order: 1},
				{ID: "copy", Role: "copywriter", Order: 2},
				{ID: "assembler", Role: "scene assembler", Order: 3},
			},
		},
		{
			name:  "custom",
			order: core.ExecutionCustom,
			agents: []core.AgentDefinition{
				{ID: "copy", Role: "copywriter", Order: 1, ReadsFrom: []string{"concept"}, WritesTo: []string{"headline"}},
				{ID: "strategy", Role: "strategist", Order: 2, WritesTo: []string{"concept"}},
				{ID: "assembler", Role: "scene assembler", Order: 3, ReadsFrom: []string{"headline"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ct := threeSceneContentType()
			ct.Policy.MinScenes = 2
			ct.Policy.MaxScenes = 4
			ct.Workflow = core.AgentWorkflow{ExecutionOrder: tt.order, Agents: tt.agents}

			router := testutil.NewRouter("{}").
				On("Produce between", scatteredPlan).
				On("contributing as", `{"line": "Pour joy"}`).
				On("Assemble scene", cleanScene)
			model := routedModel(router)
			session := newTestSession(t, model)

			result, err := session.Generate(context.Background(), GenerationRequest{ContentType: ct, Inputs: oatMilk()})
			require.NoError(t, err)

			require.Len(t, result.Scenes, 4, "plan above max_scenes is truncated")
			for i, scene := range result.Scenes {
				assert.Equal(t, i+1, scene.Index)
				assert.Equal(t, i+1, result.Plan[i].Index)
				require.Len(t, scene.AgentContributions, 3)
				assert.Equal(t, "assembler", scene.AgentContributions[2].AgentID)
			}
			assert.Equal(t, 1+4*3, model.CallCount(""))
		})
	}
}

func TestGenerationSession_Transcript(t *testing.T) {
	router := testutil.NewRouter("{}").
		On("Produce between", planResponse).
		On("contributing as", `{"line": "Pour joy"}`).
		On("Assemble scene", cleanScene)
	root := t.TempDir()
	transcript, err := service.NewTranscriptWriter(service.TranscriptConfig{Mode: "summary", Dir: root}, nil)
	require.NoError(t, err)
	session := newTestSession(t, routedModel(router), WithTranscript(transcript))

	result, err := session.Generate(context.Background(), GenerationRequest{
		ContentType: threeSceneContentType(),
		Inputs:      oatMilk(),
	})
	require.NoError(t, err)

	f, err := os.Open(filepath.Join(root, result.SessionID, "transcript.jsonl"))
	require.NoError(t, err)
	defer f.Close()

	counts := map[string]int{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec struct {
			Type  string `json:"type"`
			Agent string `json:"agent"`
		}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		counts[rec.Type]++
	}
	require.NoError(t, scanner.Err())

	// Seven calls, each recorded as a prompt and a response.
	assert.Equal(t, 7, counts[service.TranscriptPrompt])
	assert.Equal(t, 7, counts[service.TranscriptResponse])
	assert.Zero(t, counts[service.TranscriptError])
	assert.FileExists(t, filepath.Join(root, result.SessionID, "session.json"))
}

func TestGenerationSession_BannedTermRegeneratesOnce(t *testing.T) {
	violating := `{"imagePrompt": "Zoom in on a glass of oat milk.", "camera": "close-up"}`
	router := testutil.NewRouter("{}").
		On("Produce between", planResponse).
		On("contributing as", `{"line": "Pour joy"}`).
		On("Assemble scene", violating, cleanScene)
	model := routedModel(router)
	obs := &recordingObserver{}
	session := newTestSession(t, model, WithObserver(obs))

	result, err := session.Generate(context.Background(), GenerationRequest{
		ContentType: threeSceneContentType(),
		Inputs:      oatMilk(),
	})
	require.NoError(t, err)
	require.Len(t, result.Scenes, 3)

	scene1 := 0
	for _, e := range obs.agents {
		if e.Final && e.Scene.Index == 1 {
			scene1++
		}
	}
	assert.Equal(t, 2, scene1, "scene 1 final agent should run exactly twice")
	assert.Equal(t, []int{1}, obs.retries)
	assert.Equal(t, 4, model.CallCount("Assemble scene"))
	assert.NotContains(t, result.Scenes[0].ImagePrompt, "Zoom in")
}

func TestGenerationSession_Continuity(t *testing.T) {
	for _, continuity := range []bool{true, false} {
		router := testutil.NewRouter("{}").
			On("Produce between", planResponse).
			On("contributing as", `{"line": "Pour joy"}`).
			On("Assemble scene", cleanScene)
		model := routedModel(router)
		session := newTestSession(t, model)

		_, err := session.Generate(context.Background(), GenerationRequest{
			ContentType: threeSceneContentType(),
			Inputs:      oatMilk(),
			Continuity:  continuity,
		})
		require.NoError(t, err)

		finals := promptsFor(model, "Assemble scene")
		require.Len(t, finals, 3)
		assert.NotContains(t, finals[0], "Earlier scenes")
		if continuity {
			assert.Contains(t, finals[2], "Scene 1 (hook): A glass of oat milk")
		} else {
			assert.NotContains(t, finals[2], "Earlier scenes")
		}
	}
}

func TestGenerationSession_ConfigurationErrors(t *testing.T) {
	noAgents := threeSceneContentType()
	noAgents.Workflow.Agents = nil

	unknownStrategy := threeSceneContentType()
	unknownStrategy.Strategy = "magic"

	cycle := threeSceneContentType()
	cycle.Workflow = core.AgentWorkflow{
		ExecutionOrder: core.ExecutionCustom,
		Agents: []core.AgentDefinition{
			{ID: "a", Order: 1, ReadsFrom: []string{"y"}, WritesTo: []string{"x"}},
			{ID: "b", Order: 2, ReadsFrom: []string{"x"}, WritesTo: []string{"y"}},
			{ID: "c", Order: 3, Final: true},
		},
	}

	tests := []struct {
		name   string
		ct     *core.ContentTypeDefinition
		inputs core.Inputs
		code   string
	}{
		{"no workflow", noAgents, oatMilk(), core.CodeNoWorkflow},
		{"unknown strategy", unknownStrategy, oatMilk(), core.CodeInvalidConfig},
		{"cycle", cycle, oatMilk(), core.CodeDAGCycle},
		{"nil content type", nil, oatMilk(), core.CodeInvalidConfig},
		{"empty inputs", threeSceneContentType(), core.Inputs{Platform: "tiktok"}, core.CodeInvalidInputs},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := testutil.NewMockModel("mock")
			session := newTestSession(t, model)

			result, err := session.Generate(context.Background(), GenerationRequest{ContentType: tt.ct, Inputs: tt.inputs})
			require.Error(t, err)
			assert.Nil(t, result)
			assert.True(t, core.IsCode(err, tt.code), "want %s, got %v", tt.code, err)
			assert.Equal(t, 0, model.CallCount(""), "no model call on configuration errors")
		})
	}
}

func TestGenerationSession_FatalErrorReturnsNoScenes(t *testing.T) {
	calls := 0
	model := testutil.NewMockModel("mock").WithCompleteFunc(func(_ context.Context, req core.CompletionRequest) (*core.CompletionResult, error) {
		switch {
		case strings.Contains(req.UserPrompt, "Produce between"):
			return &core.CompletionResult{Text: planResponse}, nil
		case strings.Contains(req.UserPrompt, "Assemble scene 2"):
			return &core.CompletionResult{Text: "no idea"}, nil
		case strings.Contains(req.UserPrompt, "Assemble scene"):
			calls++
			return &core.CompletionResult{Text: cleanScene}, nil
		default:
			return &core.CompletionResult{Text: "{}"}, nil
		}
	})
	obs := &recordingObserver{}
	session := newTestSession(t, model, WithObserver(obs))

	result, err := session.Generate(context.Background(), GenerationRequest{
		ContentType: threeSceneContentType(),
		Inputs:      oatMilk(),
	})
	assert.Nil(t, result)
	assert.True(t, core.IsCode(err, core.CodeFinalOutputMissing))
	assert.Equal(t, 1, calls, "scene 3 should never run")
	assert.Len(t, obs.failures, 1)
}

func TestGenerationSession_PlanningFailure(t *testing.T) {
	model := testutil.NewMockModel("mock").WithResponses("I refuse to plan.")
	session := newTestSession(t, model)

	_, err := session.Generate(context.Background(), GenerationRequest{
		ContentType: threeSceneContentType(),
		Inputs:      oatMilk(),
	})
	assert.True(t, core.IsCode(err, core.CodePlanningFailed))
	assert.Equal(t, 1, model.CallCount(""))
}

func TestGenerationSession_SinglePrompt(t *testing.T) {
	ct := threeSceneContentType()
	ct.Strategy = core.StrategySinglePrompt
	ct.Workflow = core.AgentWorkflow{}

	batch := `[
		{"index": 3, "imagePrompt": "A hand holding the carton toward the lens.", "camera": "close-up", "onScreenText": "Try it today"},
		{"index": 1, "imagePrompt": "Oat milk splashing into coffee.", "camera": "overhead flat lay"},
		{"imagePrompt": "A smiling runner sipping oat milk.", "camera": "wide establishing shot"}
	]`
	router := testutil.NewRouter("{}").
		On("Produce between", planResponse).
		On("Write every scene", "```json\n"+batch+"\n```")
	model := routedModel(router)
	obs := &recordingObserver{}
	session := newTestSession(t, model, WithObserver(obs))

	result, err := session.Generate(context.Background(), GenerationRequest{ContentType: ct, Inputs: oatMilk()})
	require.NoError(t, err)

	assert.Equal(t, core.StrategySinglePrompt, result.Strategy)
	assert.Equal(t, 2, model.CallCount(""))
	require.Len(t, result.Scenes, 3)
	assert.Equal(t, "Oat milk splashing into coffee.", result.Scenes[0].ImagePrompt)
	assert.Equal(t, "A smiling runner sipping oat milk.", result.Scenes[1].ImagePrompt)
	assert.Equal(t, "A hand holding the carton toward the lens.", result.Scenes[2].ImagePrompt)
	assert.Equal(t, "hook", result.Scenes[0].ShotType)
	for _, s := range result.Scenes {
		require.Len(t, s.AgentContributions, 1)
		assert.Equal(t, singlePromptAgentID, s.AgentContributions[0].AgentID)
	}
	assert.Equal(t, []int{1, 2, 3}, obs.completed)
}

func TestGenerationSession_SinglePromptRegeneratesBatch(t *testing.T) {
	ct := threeSceneContentType()
	ct.Strategy = core.StrategySinglePrompt

	violating := `[{"imagePrompt": "Dolly shot of oat milk."}, {"imagePrompt": "Oat milk."}, {"imagePrompt": "Carton."}]`
	clean := `[{"imagePrompt": "Oat milk in a glass."}, {"imagePrompt": "Oat milk."}, {"imagePrompt": "Carton."}]`
	router := testutil.NewRouter("{}").
		On("Produce between", planResponse).
		On("Write every scene", violating, clean)
	model := routedModel(router)
	obs := &recordingObserver{}
	session := newTestSession(t, model, WithObserver(obs))

	result, err := session.Generate(context.Background(), GenerationRequest{ContentType: ct, Inputs: oatMilk()})
	require.NoError(t, err)

	assert.Equal(t, 2, model.CallCount("Write every scene"))
	assert.Equal(t, []int{1}, obs.retries)
	assert.Equal(t, "Oat milk in a glass.", result.Scenes[0].ImagePrompt)
	prompts := promptsFor(model, "Write every scene")
	assert.Contains(t, prompts[1], "No video language")
}

func TestGenerationSession_SinglePromptMissingScene(t *testing.T) {
	ct := threeSceneContentType()
	ct.Strategy = core.StrategySinglePrompt

	router := testutil.NewRouter("{}").
		On("Produce between", planResponse).
		On("Write every scene", `[{"imagePrompt": "Only one."}]`)
	session := newTestSession(t, routedModel(router))

	_, err := session.Generate(context.Background(), GenerationRequest{ContentType: ct, Inputs: oatMilk()})
	assert.True(t, core.IsCode(err, core.CodeFinalOutputMissing))
}

func TestGenerationSession_Metrics(t *testing.T) {
	router := testutil.NewRouter("{}").
		On("Produce between", planResponse).
		On("contributing as", `{"line": "Pour joy"}`).
		On("Assemble scene", cleanScene)
	metrics := service.NewMetricsCollector()
	metrics.StartSession("test")
	session := newTestSession(t, routedModel(router), WithObserver(NewMetricsObserver(metrics)), WithPolicyRetries(0))

	_, err := session.Generate(context.Background(), GenerationRequest{ContentType: threeSceneContentType(), Inputs: oatMilk()})
	require.NoError(t, err)
	metrics.EndSession()

	sm := metrics.GetSessionMetrics()
	assert.Equal(t, 3, sm.ScenesCompleted)
	assert.Equal(t, 0, sm.ScenesFailed)
	assert.Equal(t, 700, sm.TotalTokensIn)
	agents := metrics.GetAgentMetrics()
	assert.Equal(t, 3, agents["assembler"].Invocations)
	assert.Equal(t, 1, agents[plannerAgentID].Invocations)
}
