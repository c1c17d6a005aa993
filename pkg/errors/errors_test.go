package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusOfFindsEmbeddedTaroError(t *testing.T) {
	err := fmt.Errorf("handler: %w", NewValidationError("bad card list", "drawn_cards", nil))

	status, code := StatusOf(err)
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", status)
	}
	if code != CodeValidation {
		t.Fatalf("expected %s, got %s", CodeValidation, code)
	}
}

func TestStatusOfUnknownError(t *testing.T) {
	status, code := StatusOf(stderrors.New("boom"))
	if status != http.StatusInternalServerError || code != CodeTaroError {
		t.Fatalf("unexpected mapping: %d %s", status, code)
	}
}

func TestWithCauseUnwraps(t *testing.T) {
	cause := stderrors.New("dial tcp: connection refused")
	err := NewAPIError("model endpoint unreachable", http.StatusServiceUnavailable, nil).WithCause(cause)

	if !stderrors.Is(err, cause) {
		t.Fatal("expected cause in chain")
	}
	if err.Error() != "model endpoint unreachable: dial tcp: connection refused" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}
