package prompt

import (
	"embed"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"text/template"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/kapu/taro-go/pkg/errors"
)

//go:embed templates/agent.yaml
var templateFS embed.FS

const embeddedProfile = "templates/agent.yaml"

// Action names shipped with the embedded profile.
const (
	ActionCombination = "insight_combination"
	ActionNumerology  = "insight_numerology"
	ActionStoryTell   = "story_tell"
	ActionPrediction  = "prediction"
)

const CodeActionUnavailable = "ACTION_UNAVAILABLE"

type ActionUnavailableError struct {
	*errors.TaroError
	Action string
}

func NewActionUnavailableError(action string) *ActionUnavailableError {
	return &ActionUnavailableError{
		TaroError: errors.NewTaroError(
			fmt.Sprintf("unable to locate action %s", action),
			CodeActionUnavailable,
			http.StatusServiceUnavailable,
			map[string]any{"action": action},
		),
		Action: action,
	}
}

type Example struct {
	UserInput string `yaml:"user_input" json:"user_input"`
	Response  string `yaml:"response" json:"response"`
}

// Template is one action record of the agent profile.
type Template struct {
	Label          string
	Prompt         string
	Example        Example
	InputTemplate  string
	ResponseFormat string

	input *template.Template
}

type rawTemplate struct {
	Prompt         *string  `yaml:"prompt"`
	Example        *Example `yaml:"example"`
	InputTemplate  string   `yaml:"input_template"`
	ResponseFormat string   `yaml:"response_format"`
}

type rawProfile struct {
	Name      string                 `yaml:"name"`
	Role      []string               `yaml:"role"`
	Templates map[string]rawTemplate `yaml:"templates"`
}

// Registry holds the parsed action templates. Read-only after load.
type Registry struct {
	Name      string
	Role      []string
	templates map[string]*Template
}

// LoadRegistry reads the profile at path, or the embedded profile when path is empty.
func LoadRegistry(path string, logger *zap.Logger) (*Registry, error) {
	var (
		content []byte
		err     error
	)
	if path == "" {
		content, err = templateFS.ReadFile(embeddedProfile)
	} else {
		content, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, errors.NewConfigError("agent profile not found", "TEMPLATES_PATH", err)
	}
	return ParseRegistry(content, logger)
}

// ParseRegistry builds a registry from a YAML profile. Records without a
// prompt or an example are skipped rather than rejected.
func ParseRegistry(content []byte, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var raw rawProfile
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return nil, errors.NewConfigError("parse agent profile", "TEMPLATES_PATH", err)
	}
	if raw.Templates == nil {
		return nil, errors.NewConfigError("agent profile has no templates mapping", "templates", nil)
	}

	reg := &Registry{
		Name:      raw.Name,
		Role:      raw.Role,
		templates: make(map[string]*Template, len(raw.Templates)),
	}

	for label, rt := range raw.Templates {
		if rt.Prompt == nil || rt.Example == nil {
			logger.Debug("Skipping incomplete action template", zap.String("action", label))
			continue
		}

		input, err := template.New(label).Option("missingkey=error").Parse(rt.InputTemplate)
		if err != nil {
			return nil, errors.NewConfigError(fmt.Sprintf("parse input template for %s", label), "templates."+label, err)
		}

		reg.templates[label] = &Template{
			Label:          label,
			Prompt:         strings.TrimSpace(*rt.Prompt),
			Example:        *rt.Example,
			InputTemplate:  rt.InputTemplate,
			ResponseFormat: strings.TrimSpace(rt.ResponseFormat),
			input:          input,
		}
	}

	logger.Info("Agent profile loaded",
		zap.String("name", reg.Name),
		zap.Strings("actions", reg.Actions()),
	)
	return reg, nil
}

func (r *Registry) Get(action string) (*Template, error) {
	if tmpl, ok := r.templates[action]; ok {
		return tmpl, nil
	}
	return nil, NewActionUnavailableError(action)
}

// Actions lists registered action names, sorted.
func (r *Registry) Actions() []string {
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
