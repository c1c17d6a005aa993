package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"

	"github.com/kapu/taro-go/internal/domain"
	"github.com/kapu/taro-go/internal/prompt"
)

// OpenAIProvider targets any OpenAI-compatible server (vLLM, llama.cpp,
// LM Studio, Ollama's /v1). Options without a native field are sent as
// extra JSON body keys.
type OpenAIProvider struct {
	client  *openai.Client
	baseURL string
	logger  *zap.Logger
}

func NewOpenAIProvider(baseURL, apiKey string, httpClient *http.Client, logger *zap.Logger) *OpenAIProvider {
	if apiKey == "" {
		apiKey = "unused"
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(strings.TrimRight(baseURL, "/") + "/"),
		option.WithMaxRetries(0),
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	client := openai.NewClient(opts...)
	return &OpenAIProvider{
		client:  &client,
		baseURL: baseURL,
		logger:  logger,
	}
}

func (o *OpenAIProvider) Name() string {
	return "OpenAI"
}

func (o *OpenAIProvider) Endpoint() string {
	return o.baseURL
}

func (o *OpenAIProvider) ListModels(ctx context.Context) ([]string, error) {
	page, err := o.client.Models.List(ctx)
	if err != nil {
		return nil, o.translate(err)
	}

	models := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		models = append(models, m.ID)
	}
	return models, nil
}

func (o *OpenAIProvider) Chat(ctx context.Context, model string, messages []prompt.ChatMessage, opts domain.DecodeOptions) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:            openai.ChatModel(model),
		Messages:         toOpenAIMessages(messages),
		Seed:             openai.Int(int64(opts.Seed)),
		Temperature:      openai.Float(opts.Temperature),
		TopP:             openai.Float(opts.TopP),
		PresencePenalty:  openai.Float(opts.PresencePenalty),
		FrequencyPenalty: openai.Float(opts.FrequencyPenalty),
		MaxTokens:        openai.Int(int64(opts.NumPredict)),
	}

	resp, err := o.client.Chat.Completions.New(ctx, params,
		option.WithJSONSet("top_k", opts.TopK),
		option.WithJSONSet("repetition_penalty", opts.RepeatPenalty),
	)
	if err != nil {
		o.logger.Error("OpenAI-compatible chat failed", zap.String("model", model), zap.Error(err))
		return "", o.translate(err)
	}
	if len(resp.Choices) == 0 {
		return "", newResponseError(o.Name(), http.StatusOK, "no choices in response")
	}

	o.logger.Debug("OpenAI-compatible response received",
		zap.String("model", model),
		zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int64("completion_tokens", resp.Usage.CompletionTokens),
	)
	return resp.Choices[0].Message.Content, nil
}

// translate separates answered requests from transport failures.
func (o *OpenAIProvider) translate(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return newResponseError(o.Name(), apiErr.StatusCode, apiErr.Message)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("openai request: %w", err)
	}
	return NewConnectionError(o.baseURL, err)
}

func toOpenAIMessages(messages []prompt.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case prompt.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
