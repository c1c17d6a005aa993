package ai

import (
	"fmt"
	"net/http"

	"github.com/kapu/taro-go/internal/constants"
	"github.com/kapu/taro-go/internal/util"
	"github.com/kapu/taro-go/pkg/errors"
)

const (
	CodeBadSetup    = "BAD_MODEL_SETUP"
	CodeModelClosed = "MODEL_CIRCUIT_OPEN"
)

// BadSetupError means the endpoint answered but the configured model is not loaded.
type BadSetupError struct {
	*errors.TaroError
	Provider  string
	Model     string
	Available []string
}

func NewBadSetupError(provider, model string, available []string) *BadSetupError {
	return &BadSetupError{
		TaroError: errors.NewTaroError(
			fmt.Sprintf("%s endpoint is reachable but model %s is not loaded", provider, model),
			CodeBadSetup,
			http.StatusServiceUnavailable,
			map[string]any{"provider": provider, "model": model, "available": len(available)},
		),
		Provider:  provider,
		Model:     model,
		Available: available,
	}
}

// ConnectionError means the endpoint could not be reached at all.
type ConnectionError struct {
	*errors.TaroError
	Endpoint string
}

func NewConnectionError(endpoint string, cause error) *ConnectionError {
	e := &ConnectionError{
		TaroError: errors.NewTaroError(
			fmt.Sprintf("model endpoint %s is unreachable", endpoint),
			errors.CodeUnavailable,
			http.StatusServiceUnavailable,
			map[string]any{"endpoint": endpoint},
		),
		Endpoint: endpoint,
	}
	e.Cause = cause
	return e
}

// newResponseError wraps a non-2xx answer from the model endpoint. The body
// is truncated before it reaches the error context and the logs.
func newResponseError(provider string, status int, body string) *errors.APIError {
	return errors.NewAPIError(
		fmt.Sprintf("%s returned %d", provider, status),
		http.StatusBadGateway,
		map[string]any{
			"provider": provider,
			"status":   status,
			"body":     util.TruncateString(body, constants.InputLimits.MaxLoggedBody),
		},
	)
}

func newCircuitOpenError(provider string) *errors.TaroError {
	return errors.NewTaroError(
		fmt.Sprintf("%s calls are suspended after repeated failures", provider),
		CodeModelClosed,
		http.StatusServiceUnavailable,
		map[string]any{"provider": provider},
	)
}
