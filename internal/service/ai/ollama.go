package ai

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"

	"github.com/kapu/taro-go/internal/constants"
	"github.com/kapu/taro-go/internal/domain"
	"github.com/kapu/taro-go/internal/prompt"
	"github.com/kapu/taro-go/pkg/errors"
)

// OllamaProvider talks to the native Ollama API so every decode option
// reaches the runtime unchanged.
type OllamaProvider struct {
	baseURL string
	client  *api.Client
	logger  *zap.Logger
}

func NewOllamaProvider(baseURL string, httpClient *http.Client, logger *zap.Logger) (*OllamaProvider, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.NewConfigError("invalid ollama server url", "LLM_SERVER_URL", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.NewConfigError("ollama server url needs a scheme and host", "LLM_SERVER_URL", nil)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: constants.Timeouts.ModelRequest}
	}
	return &OllamaProvider{
		baseURL: baseURL,
		client:  api.NewClient(base, httpClient),
		logger:  logger,
	}, nil
}

func (o *OllamaProvider) Name() string {
	return "Ollama"
}

func (o *OllamaProvider) Endpoint() string {
	return o.baseURL
}

func (o *OllamaProvider) ListModels(ctx context.Context) ([]string, error) {
	resp, err := o.client.List(ctx)
	if err != nil {
		return nil, o.translate(err)
	}

	models := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		name := m.Model
		if name == "" {
			name = m.Name
		}
		models = append(models, name)
	}
	return models, nil
}

func (o *OllamaProvider) Chat(ctx context.Context, model string, messages []prompt.ChatMessage, opts domain.DecodeOptions) (string, error) {
	stream := false
	req := &api.ChatRequest{
		Model:    model,
		Messages: make([]api.Message, 0, len(messages)),
		Stream:   &stream,
		Options:  opts.Map(),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, api.Message{Role: m.Role, Content: m.Content})
	}

	var content strings.Builder
	err := o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", o.translate(err)
	}

	o.logger.Debug("Ollama response received",
		zap.String("model", model),
		zap.Int("length", content.Len()),
	)
	return content.String(), nil
}

// translate maps client errors onto the model error taxonomy: transport
// failures are connection errors, non-2xx answers are upstream errors.
func (o *OllamaProvider) translate(err error) error {
	var urlErr *url.Error
	if stderrors.As(err, &urlErr) {
		return NewConnectionError(o.baseURL, err)
	}

	var statusErr api.StatusError
	if stderrors.As(err, &statusErr) {
		return newResponseError(o.Name(), statusErr.StatusCode, statusErr.ErrorMessage).WithCause(err)
	}

	return errors.NewAPIError("ollama request failed", http.StatusBadGateway, map[string]any{
		"url": o.baseURL,
	}).WithCause(err)
}
