package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	CodeTaroError   = "TARO_ERROR"
	CodeAPIError    = "API_ERROR"
	CodeValidation  = "VALIDATION_ERROR"
	CodeNotFound    = "NOT_FOUND"
	CodeCache       = "CACHE_ERROR"
	CodeService     = "SERVICE_ERROR"
	CodeConfig      = "CONFIG_ERROR"
	CodeUnavailable = "SERVICE_UNAVAILABLE"
)

type TaroError struct {
	Message    string
	Code       string
	StatusCode int
	Context    map[string]any
	Cause      error
}

func (e *TaroError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *TaroError) Unwrap() error {
	return e.Cause
}

// HTTPStatus reports the status code the HTTP surface answers with.
func (e *TaroError) HTTPStatus() int {
	return e.StatusCode
}

// ErrorCode reports the machine-readable code put in error payloads.
func (e *TaroError) ErrorCode() string {
	return e.Code
}

func NewTaroError(message, code string, statusCode int, context map[string]any) *TaroError {
	return &TaroError{
		Message:    message,
		Code:       code,
		StatusCode: statusCode,
		Context:    context,
	}
}

func (e *TaroError) WithCause(cause error) *TaroError {
	e.Cause = cause
	return e
}

// Coded is satisfied by TaroError and every type embedding it.
type Coded interface {
	error
	HTTPStatus() int
	ErrorCode() string
}

// StatusOf finds the first Coded error in err's chain.
// Unknown errors map to 500 / TARO_ERROR.
func StatusOf(err error) (int, string) {
	var coded Coded
	if stderrors.As(err, &coded) {
		return coded.HTTPStatus(), coded.ErrorCode()
	}
	return http.StatusInternalServerError, CodeTaroError
}

type APIError struct {
	*TaroError
}

func NewAPIError(message string, statusCode int, context map[string]any) *APIError {
	return &APIError{
		TaroError: &TaroError{
			Message:    message,
			Code:       CodeAPIError,
			StatusCode: statusCode,
			Context:    context,
		},
	}
}

func (e *APIError) WithCause(cause error) *APIError {
	e.Cause = cause
	return e
}

type ValidationError struct {
	*TaroError
	Field string
	Value interface{}
}

func NewValidationError(message, field string, value interface{}) *ValidationError {
	return &ValidationError{
		TaroError: &TaroError{
			Message:    message,
			Code:       CodeValidation,
			StatusCode: http.StatusUnprocessableEntity,
			Context: map[string]any{
				"field": field,
				"value": value,
			},
		},
		Field: field,
		Value: value,
	}
}

type NotFoundError struct {
	*TaroError
	Resource string
	Key      string
}

func NewNotFoundError(message, resource, key string) *NotFoundError {
	return &NotFoundError{
		TaroError: &TaroError{
			Message:    message,
			Code:       CodeNotFound,
			StatusCode: http.StatusNotFound,
			Context: map[string]any{
				"resource": resource,
				"key":      key,
			},
		},
		Resource: resource,
		Key:      key,
	}
}

type CacheError struct {
	*TaroError
	Operation string
	Key       string
}

func NewCacheError(message, operation, key string, cause error) *CacheError {
	return &CacheError{
		TaroError: &TaroError{
			Message:    message,
			Code:       CodeCache,
			StatusCode: http.StatusInternalServerError,
			Context: map[string]any{
				"operation": operation,
				"key":       key,
			},
			Cause: cause,
		},
		Operation: operation,
		Key:       key,
	}
}

type ServiceError struct {
	*TaroError
	Service   string
	Operation string
}

func NewServiceError(message, service, operation string, cause error) *ServiceError {
	return &ServiceError{
		TaroError: &TaroError{
			Message:    message,
			Code:       CodeService,
			StatusCode: http.StatusInternalServerError,
			Context: map[string]any{
				"service":   service,
				"operation": operation,
			},
			Cause: cause,
		},
		Service:   service,
		Operation: operation,
	}
}

// ConfigError marks startup failures; callers abort the process on it.
type ConfigError struct {
	*TaroError
	Key string
}

func NewConfigError(message, key string, cause error) *ConfigError {
	return &ConfigError{
		TaroError: &TaroError{
			Message:    message,
			Code:       CodeConfig,
			StatusCode: http.StatusInternalServerError,
			Context: map[string]any{
				"key": key,
			},
			Cause: cause,
		},
		Key: key,
	}
}
