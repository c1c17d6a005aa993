package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/kapu/taro-go/internal/domain"
	"github.com/kapu/taro-go/internal/prompt"
)

// GeminiProvider sends system turns as the system instruction and maps the
// decode options onto GenerateContentConfig.
type GeminiProvider struct {
	client *genai.Client
	logger *zap.Logger
}

func NewGeminiProvider(ctx context.Context, apiKey string, logger *zap.Logger) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiProvider{client: client, logger: logger}, nil
}

func (g *GeminiProvider) Name() string {
	return "Gemini"
}

func (g *GeminiProvider) Endpoint() string {
	return "generativelanguage.googleapis.com"
}

func (g *GeminiProvider) ListModels(ctx context.Context) ([]string, error) {
	page, err := g.client.Models.List(ctx, nil)
	if err != nil {
		return nil, g.translate(err)
	}

	var models []string
	for {
		for _, m := range page.Items {
			if m != nil {
				models = append(models, strings.TrimPrefix(m.Name, "models/"))
			}
		}
		if page.NextPageToken == "" {
			break
		}
		page, err = page.Next(ctx)
		if errors.Is(err, genai.ErrPageDone) {
			break
		}
		if err != nil {
			return nil, g.translate(err)
		}
	}
	return models, nil
}

func (g *GeminiProvider) Chat(ctx context.Context, model string, messages []prompt.ChatMessage, opts domain.DecodeOptions) (string, error) {
	temperature := float32(opts.Temperature)
	topP := float32(opts.TopP)
	topK := float32(opts.TopK)
	seed := int32(opts.Seed)
	presence := float32(opts.PresencePenalty)
	frequency := float32(opts.FrequencyPenalty)

	config := &genai.GenerateContentConfig{
		Temperature:      &temperature,
		TopP:             &topP,
		TopK:             &topK,
		Seed:             &seed,
		PresencePenalty:  &presence,
		FrequencyPenalty: &frequency,
		MaxOutputTokens:  int32(opts.NumPredict),
	}

	var contents []*genai.Content
	for _, m := range messages {
		if m.Role == prompt.RoleSystem {
			config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: m.Content}}}
			continue
		}
		role := string(genai.RoleUser)
		if m.Role == "assistant" {
			role = string(genai.RoleModel)
		}
		contents = append(contents, &genai.Content{Role: role, Parts: []*genai.Part{{Text: m.Content}}})
	}

	resp, err := g.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		g.logger.Error("Gemini generation failed", zap.String("model", model), zap.Error(err))
		return "", g.translate(err)
	}

	text := extractGeminiText(resp)
	if text == "" {
		return "", newResponseError(g.Name(), http.StatusOK, "empty response")
	}
	return text, nil
}

func (g *GeminiProvider) translate(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return newResponseError(g.Name(), apiErr.Code, apiErr.Message)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("gemini request: %w", err)
	}
	return NewConnectionError(g.Endpoint(), err)
}

func extractGeminiText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return ""
	}

	var texts []string
	for _, part := range candidate.Content.Parts {
		if part != nil && part.Text != "" {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "")
}
