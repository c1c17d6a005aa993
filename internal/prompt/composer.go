package prompt

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/kapu/taro-go/pkg/errors"
)

const CodeInvalidInputs = "INVALID_ACTION_INPUTS"

// InvalidInputsError reports values that could not fill an action's input template.
type InvalidInputsError struct {
	*errors.TaroError
	Action string
	Keys   []string
}

func NewInvalidInputsError(action string, keys []string, cause error) *InvalidInputsError {
	e := &InvalidInputsError{
		TaroError: errors.NewTaroError(
			fmt.Sprintf("insufficient inputs provided for action %s, got keys %v", action, keys),
			CodeInvalidInputs,
			http.StatusUnprocessableEntity,
			map[string]any{"action": action, "keys": keys},
		),
		Action: action,
		Keys:   keys,
	}
	e.Cause = cause
	return e
}

const (
	RoleSystem = "system"
	RoleUser   = "user"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SystemPrompt is the static system turn: instructions, the response format
// when the template has one, and the worked example.
func (t *Template) SystemPrompt() string {
	var b strings.Builder
	b.WriteString(t.Prompt)
	b.WriteString("\n\nPlease ensure that your response align with given response format below:\n\n")
	if t.ResponseFormat != "" {
		b.WriteString("### Response Format\n")
		b.WriteString(t.ResponseFormat)
		b.WriteString("\n\n")
	}
	b.WriteString("### Example User Input\n")
	b.WriteString(strings.TrimSpace(t.Example.UserInput))
	b.WriteString("\n### Example Response\n")
	b.WriteString(strings.TrimSpace(t.Example.Response))
	b.WriteString("\n")
	return b.String()
}

// Compose renders the input template with values and returns the system and
// user turns. It performs no I/O.
func Compose(t *Template, values map[string]any) ([]ChatMessage, error) {
	var buf bytes.Buffer
	if err := t.input.Execute(&buf, values); err != nil {
		return nil, NewInvalidInputsError(t.Label, sortedKeys(values), err)
	}

	user := strings.TrimSpace(buf.String())
	if user == "" {
		return nil, NewInvalidInputsError(t.Label, sortedKeys(values), nil)
	}

	return []ChatMessage{
		{Role: RoleSystem, Content: t.SystemPrompt()},
		{Role: RoleUser, Content: user},
	}, nil
}

func sortedKeys(values map[string]any) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
