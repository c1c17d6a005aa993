package domain

import (
	"fmt"
	"net/http"

	"github.com/kapu/taro-go/pkg/errors"
)

// Error codes owned by the reading domain.
const (
	CodeModeNotFound         = "MODE_NOT_FOUND"
	CodeCardCountMismatch    = "CARD_COUNT_MISMATCH"
	CodeInsightsInconsistent = "INSIGHTS_CALCULATION_ERROR"
	CodeUnknownDecodeOption  = "UNKNOWN_DECODE_OPTION"
)

var (
	ErrEmptySpread = errors.NewValidationError("drawn_cards must have at least one card", "drawn_cards", 0)
	ErrZeroCards   = errors.NewValidationError("cannot compute stats with zero cards", "num_cards", 0)
)

type ModeNotFoundError struct {
	*errors.TaroError
	Requested string
}

func NewModeNotFoundError(requested string) *ModeNotFoundError {
	return &ModeNotFoundError{
		TaroError: errors.NewTaroError(
			fmt.Sprintf("reading mode %q is unavailable", requested),
			CodeModeNotFound,
			http.StatusNotFound,
			map[string]any{"reading_mode": requested},
		),
		Requested: requested,
	}
}

type MismatchedCardsError struct {
	*errors.TaroError
	Mode     string
	Expected int
	Actual   int
}

func NewMismatchedCardsError(mode string, expected, actual int) *MismatchedCardsError {
	return &MismatchedCardsError{
		TaroError: errors.NewTaroError(
			fmt.Sprintf("expected %d cards for reading mode %s but received %d", expected, mode, actual),
			CodeCardCountMismatch,
			http.StatusUnprocessableEntity,
			map[string]any{"reading_mode": mode, "expected": expected, "actual": actual},
		),
		Mode:     mode,
		Expected: expected,
		Actual:   actual,
	}
}

// InsightsCalculationError reports counts that cannot come from the given spread.
type InsightsCalculationError struct {
	*errors.TaroError
	Category string
	Expected int
	Actual   int
}

func NewInsightsCalculationError(category string, expected, actual int) *InsightsCalculationError {
	return &InsightsCalculationError{
		TaroError: errors.NewTaroError(
			fmt.Sprintf("invalid tarot insight calculation for %s: counted %d but only %d cards were drawn", category, actual, expected),
			CodeInsightsInconsistent,
			http.StatusInternalServerError,
			map[string]any{"category": category, "expected": expected, "actual": actual},
		),
		Category: category,
		Expected: expected,
		Actual:   actual,
	}
}

type UnknownDecodeOptionError struct {
	*errors.TaroError
	Key string
}

func NewUnknownDecodeOptionError(key string) *UnknownDecodeOptionError {
	return &UnknownDecodeOptionError{
		TaroError: errors.NewTaroError(
			fmt.Sprintf("unknown decode option: %q", key),
			CodeUnknownDecodeOption,
			http.StatusBadRequest,
			map[string]any{"key": key},
		),
		Key: key,
	}
}
