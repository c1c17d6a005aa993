package ai

import (
	"context"
	"strings"

	"github.com/kapu/taro-go/internal/domain"
	"github.com/kapu/taro-go/internal/prompt"
)

// Provider is a chat-completion backend.
type Provider interface {
	Name() string
	Endpoint() string
	ListModels(ctx context.Context) ([]string, error)
	Chat(ctx context.Context, model string, messages []prompt.ChatMessage, opts domain.DecodeOptions) (string, error)
}

// hasModel treats "name" and "name:latest" as the same model.
func hasModel(available []string, model string) bool {
	want := canonicalModel(model)
	for _, m := range available {
		if canonicalModel(m) == want {
			return true
		}
	}
	return false
}

func canonicalModel(m string) string {
	m = strings.TrimSpace(m)
	m = strings.TrimPrefix(m, "models/")
	return strings.TrimSuffix(m, ":latest")
}
