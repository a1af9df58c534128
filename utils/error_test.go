package utils

import (
	"fmt"
	"testing"
)

func TestValidationErrorDetection(t *testing.T) {
	err := NewValidationError("quantity must be positive")
	if !IsValidationError(err) {
		t.Error("IsValidationError should match a ValidationError")
	}
	if IsValidationError(ErrorRecordNotFound) {
		t.Error("IsValidationError should not match a sentinel error")
	}
	// Wrapped errors still match.
	wrapped := fmt.Errorf("create request: %w", err)
	if !IsValidationError(wrapped) {
		t.Error("IsValidationError should match through wrapping")
	}
}

func TestTransitionErrorMessage(t *testing.T) {
	err := NewTransitionError("request", "received", "dispatch")
	if !IsTransitionError(err) {
		t.Error("IsTransitionError should match a TransitionError")
	}
	want := "request cannot move from received to dispatch"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if IsTransitionError(NewValidationError("nope")) {
		t.Error("IsTransitionError should not match a ValidationError")
	}
}
