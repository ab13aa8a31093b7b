package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/core"
)

type fakeConverse struct {
	out *bedrockruntime.ConverseOutput
	err error
	got *bedrockruntime.ConverseInput
}

func (f *fakeConverse) Converse(_ context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.got = params
	return f.out, f.err
}

func converseOutput(texts ...string) *bedrockruntime.ConverseOutput {
	blocks := make([]types.ContentBlock, 0, len(texts))
	for _, t := range texts {
		blocks = append(blocks, &types.ContentBlockMemberText{Value: t})
	}
	return &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{Value: types.Message{
			Role:    types.ConversationRoleAssistant,
			Content: blocks,
		}},
		StopReason: types.StopReasonEndTurn,
		Usage:      &types.TokenUsage{InputTokens: aws.Int32(80), OutputTokens: aws.Int32(20)},
	}
}

func TestBedrockModel_Complete(t *testing.T) {
	client := &fakeConverse{out: converseOutput(`{"imagePrompt": `, `"A jar."}`)}
	m := newBedrockModelWithClient("anthropic.claude-3-haiku", 1024, client, nil)

	res, err := m.Complete(context.Background(), core.CompletionRequest{
		SystemPrompt: "You assemble scenes.",
		UserPrompt:   "Assemble scene 1 of 3.",
		Temperature:  0.4,
	})
	require.NoError(t, err)

	assert.Equal(t, "bedrock", m.Name())
	assert.Equal(t, `{"imagePrompt": "A jar."}`, res.Text)
	assert.Equal(t, 80, res.TokensIn)
	assert.Equal(t, 20, res.TokensOut)
	assert.Equal(t, "end_turn", res.FinishReason)
	assert.Equal(t, "anthropic.claude-3-haiku", res.Model)

	in := client.got
	assert.Equal(t, "anthropic.claude-3-haiku", aws.ToString(in.ModelId))
	require.Len(t, in.System, 1)
	require.Len(t, in.Messages, 1)
	assert.Equal(t, types.ConversationRoleUser, in.Messages[0].Role)
	assert.Equal(t, int32(1024), aws.ToInt32(in.InferenceConfig.MaxTokens))
	assert.InDelta(t, 0.4, aws.ToFloat32(in.InferenceConfig.Temperature), 1e-6)
}

func TestBedrockModel_NoSystemPrompt(t *testing.T) {
	client := &fakeConverse{out: converseOutput("ok")}
	m := newBedrockModelWithClient("m", 0, client, nil)

	_, err := m.Complete(context.Background(), core.CompletionRequest{UserPrompt: "hi"})
	require.NoError(t, err)
	assert.Empty(t, client.got.System)
	assert.Equal(t, int32(2048), aws.ToInt32(client.got.InferenceConfig.MaxTokens))
}

func TestBedrockModel_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"throttled", &smithy.GenericAPIError{Code: "ThrottlingException", Message: "rate"}, core.CodeRateLimited},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "no"}, core.CodeProviderAuth},
		{"not ready", &smithy.GenericAPIError{Code: "ModelNotReadyException", Message: "warming"}, core.CodeProviderUnavailable},
		{"validation", &smithy.GenericAPIError{Code: "ValidationException", Message: "too long"}, core.CodeProviderRequest},
		{"network", errors.New("no such host"), core.CodeProviderUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newBedrockModelWithClient("m", 0, &fakeConverse{err: tt.err}, nil)
			_, err := m.Complete(context.Background(), core.CompletionRequest{UserPrompt: "hi"})
			assert.True(t, core.IsCode(err, tt.code), "want %s, got %v", tt.code, err)
		})
	}

	m := newBedrockModelWithClient("m", 0, &fakeConverse{err: context.Canceled}, nil)
	_, err := m.Complete(context.Background(), core.CompletionRequest{UserPrompt: "hi"})
	assert.ErrorIs(t, err, context.Canceled)
}
