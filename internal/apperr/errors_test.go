package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestProviderErrorPreservesOriginal(t *testing.T) {
	orig := errors.New("429 rate limited")
	err := fmt.Errorf("calendar tool: %w", ProviderFailed("google_calendar", "book_meeting", orig))

	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError in chain, got %v", err)
	}
	if pe.Message != "429 rate limited" || pe.Operation != "book_meeting" {
		t.Fatalf("unexpected provider error: %+v", pe)
	}
	if !errors.Is(err, orig) {
		t.Fatalf("expected original error to be reachable via errors.Is")
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := Invalid("duration", "must be between %d and %d minutes", 15, 480)
	if !IsValidation(err) {
		t.Fatalf("expected validation error")
	}
	if got := err.Error(); got != "validation error: duration: must be between 15 and 480 minutes" {
		t.Fatalf("unexpected message %q", got)
	}
	if IsProvider(err) {
		t.Fatalf("validation error must not look like a provider error")
	}
}
