package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/config"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/core"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/logging"
)

// converseAPI is the part of the Bedrock runtime client the model uses.
type converseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockModel completes prompts with the AWS Bedrock Converse API.
type BedrockModel struct {
	model     string
	maxTokens int
	client    converseAPI
	logger    *logging.Logger
}

// NewBedrockModel creates a Bedrock model using the default AWS credential
// chain.
func NewBedrockModel(ctx context.Context, cfg config.LLMConfig, logger *logging.Logger) (*BedrockModel, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	return newBedrockModelWithClient(cfg.Model, cfg.MaxTokens, bedrockruntime.NewFromConfig(awsCfg), logger), nil
}

func newBedrockModelWithClient(model string, maxTokens int, client converseAPI, logger *logging.Logger) *BedrockModel {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &BedrockModel{model: model, maxTokens: maxTokens, client: client, logger: logger}
}

// Name implements core.Model.
func (m *BedrockModel) Name() string { return "bedrock" }

// Complete implements core.Model.
func (m *BedrockModel) Complete(ctx context.Context, req core.CompletionRequest) (*core.CompletionResult, error) {
	model := req.Model
	if model == "" {
		model = m.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = m.maxTokens
	}
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(model),
		Messages: []types.Message{{
			Role:    types.ConversationRoleUser,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: req.UserPrompt}},
		}},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(int32(maxTokens)),
			Temperature: aws.Float32(float32(req.Temperature)),
		},
	}
	if req.SystemPrompt != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: req.SystemPrompt},
		}
	}

	start := time.Now()
	out, err := m.client.Converse(ctx, input)
	if err != nil {
		return nil, mapBedrockError(err)
	}

	result := &core.CompletionResult{
		Text:         converseText(out),
		Model:        model,
		Duration:     time.Since(start),
		FinishReason: string(out.StopReason),
	}
	if out.Usage != nil {
		result.TokensIn = int(aws.ToInt32(out.Usage.InputTokens))
		result.TokensOut = int(aws.ToInt32(out.Usage.OutputTokens))
	}

	m.logger.Debug("bedrock completion",
		"model", model,
		"tokens_in", result.TokensIn,
		"tokens_out", result.TokensOut,
		"stop_reason", result.FinishReason,
		"duration", result.Duration,
	)
	return result, nil
}

// converseText joins the text blocks of the assistant message.
func converseText(out *bedrockruntime.ConverseOutput) string {
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return ""
	}
	var b strings.Builder
	for _, block := range msg.Value.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			b.WriteString(text.Value)
		}
	}
	return b.String()
}

func mapBedrockError(err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return transportError("bedrock", err)
	}

	msg := fmt.Sprintf("bedrock: %s", apiErr.ErrorMessage())
	switch apiErr.ErrorCode() {
	case "ThrottlingException", "TooManyRequestsException", "ServiceQuotaExceededException":
		return core.ErrRateLimit(msg).WithCause(err)
	case "AccessDeniedException", "UnrecognizedClientException", "ExpiredTokenException":
		return core.ErrProvider(core.CodeProviderAuth, msg).WithCause(err)
	case "ModelNotReadyException", "ServiceUnavailableException", "InternalServerException", "ModelTimeoutException":
		return core.ErrProvider(core.CodeProviderUnavailable, msg).WithCause(err)
	default:
		return core.ErrProvider(core.CodeProviderRequest, fmt.Sprintf("%s (%s)", msg, apiErr.ErrorCode())).WithCause(err)
	}
}
