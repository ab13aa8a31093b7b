package llm

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/config"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/core"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/logging"
)

// chatCompletionAPI is the part of the OpenAI client the model uses.
type chatCompletionAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIModel completes prompts with the OpenAI chat completions API or
// any server compatible with it.
type OpenAIModel struct {
	model     string
	maxTokens int
	client    chatCompletionAPI
	logger    *logging.Logger
}

// NewOpenAIModel creates an OpenAI model. An API key is required unless a
// base URL points at a compatible server.
func NewOpenAIModel(cfg config.LLMConfig, logger *logging.Logger) (*OpenAIModel, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, core.ErrProvider(core.CodeProviderAuth,
			"openai api key not configured (set SCENEBRIEF_LLM_API_KEY or OPENAI_API_KEY)")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.TimeoutDuration()}

	return newOpenAIModelWithClient(cfg.Model, cfg.MaxTokens, openai.NewClientWithConfig(clientCfg), logger), nil
}

func newOpenAIModelWithClient(model string, maxTokens int, client chatCompletionAPI, logger *logging.Logger) *OpenAIModel {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &OpenAIModel{model: model, maxTokens: maxTokens, client: client, logger: logger}
}

// Name implements core.Model.
func (m *OpenAIModel) Name() string { return "openai" }

// Complete implements core.Model.
func (m *OpenAIModel) Complete(ctx context.Context, req core.CompletionRequest) (*core.CompletionResult, error) {
	model := req.Model
	if model == "" {
		model = m.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = m.maxTokens
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.UserPrompt})

	// A zero temperature is dropped from the request body by omitempty.
	temperature := float32(req.Temperature)
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	start := time.Now()
	resp, err := m.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return nil, mapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, core.ErrProvider(core.CodeProviderRequest, "openai: response has no choices")
	}

	choice := resp.Choices[0]
	result := &core.CompletionResult{
		Text:         choice.Message.Content,
		TokensIn:     resp.Usage.PromptTokens,
		TokensOut:    resp.Usage.CompletionTokens,
		Model:        resp.Model,
		Duration:     time.Since(start),
		FinishReason: string(choice.FinishReason),
	}
	if result.Model == "" {
		result.Model = model
	}

	m.logger.Debug("openai completion",
		"model", result.Model,
		"tokens_in", result.TokensIn,
		"tokens_out", result.TokensOut,
		"finish_reason", result.FinishReason,
		"duration", result.Duration,
	)
	return result, nil
}

func mapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return statusError("openai", apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return statusError("openai", reqErr.HTTPStatusCode, reqErr.Error(), err)
	}
	return transportError("openai", err)
}
