// Package apperr defines the error taxonomy shared by token refresh, tool execution and
// agent assembly.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFoundOrInactive is returned when an agent or connection is missing or soft-deleted.
	ErrNotFoundOrInactive = errors.New("not found or inactive")

	// ErrReauthorizationRequired means the stored credential cannot be refreshed and the
	// user has to reconnect the account. Retrying will not help.
	ErrReauthorizationRequired = errors.New("reauthorization required")

	// ErrNotFound is returned when a provider-side lookup (e.g. a CRM contact) has no match.
	ErrNotFound = errors.New("not found")

	// ErrUnsupportedProvider is logged when a connection has a provider no tool factory knows.
	ErrUnsupportedProvider = errors.New("unsupported provider")
)

// ValidationError reports malformed tool input. The model is expected to fix the input and
// retry within the same turn.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Message
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Invalid builds a *ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ProviderError wraps a downstream API failure. Message preserves the provider's own text.
type ProviderError struct {
	Provider  string
	Operation string
	Message   string
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s failed: %s", e.Provider, e.Operation, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ProviderFailed builds a *ProviderError from an underlying error.
func ProviderFailed(provider, operation string, err error) error {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return &ProviderError{Provider: provider, Operation: operation, Message: msg, Err: err}
}

// IsValidation reports whether err is or wraps a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsProvider reports whether err is or wraps a *ProviderError.
func IsProvider(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
