package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"validation", Validation("providers", "providers must not be empty"), ErrValidation},
		{"not found", NotFound("job", "pub_abc"), ErrNotFound},
		{"forbidden", Forbidden("job", "job belongs to another user"), ErrForbidden},
		{"conflict", Conflict("job", "pub_abc", "job already exists"), ErrConflict},
		{"internal", Internal("store.create", errors.New("connection refused")), ErrInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false, want true", tt.err, tt.sentinel)
			}
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{Validation("caption", "caption is required"), http.StatusBadRequest},
		{NotFound("job", "pub_missing"), http.StatusNotFound},
		{Forbidden("job", "owner mismatch"), http.StatusForbidden},
		{Conflict("job", "pub_dup", "duplicate"), http.StatusConflict},
		{Internal("store.get", errors.New("boom")), http.StatusInternalServerError},
		{errors.New("plain error"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	err := NotFound("job", "pub_123")
	if err.Error() != "job pub_123 not found" {
		t.Errorf("unexpected message: %q", err.Error())
	}

	wrapped := fmt.Errorf("handling request: %w", err)
	if !errors.Is(wrapped, ErrNotFound) {
		t.Error("classification lost through wrapping")
	}
}
