// Package tools defines the capability contract agents expose to the model and the helpers
// shared by the provider tool factories.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/pysugar/agent-nexus/internal/apperr"
)

// Tool is a named capability the model can invoke with JSON arguments.
type Tool interface {
	Name() string
	Description() string
	// Provider is the connection provider tag, or "documents" for retrieval.
	Provider() string
	InputSchema() map[string]any
	OutputSchema() map[string]any
	Call(ctx context.Context, args json.RawMessage) (any, error)
}

// Config names a typed tool.
type Config struct {
	Name        string
	Description string
	Provider    string
}

// New builds a Tool from a typed function. Input and output schemas are reflected from In
// and Out using json and jsonschema struct tags.
func New[In, Out any](cfg Config, fn func(context.Context, In) (Out, error)) (Tool, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("tool name is required")
	}
	if cfg.Description == "" {
		return nil, fmt.Errorf("tool %s: description is required", cfg.Name)
	}
	in, err := Schema[In]()
	if err != nil {
		return nil, fmt.Errorf("failed to generate input schema for %s: %w", cfg.Name, err)
	}
	out, err := Schema[Out]()
	if err != nil {
		return nil, fmt.Errorf("failed to generate output schema for %s: %w", cfg.Name, err)
	}
	return &typedTool[In, Out]{cfg: cfg, fn: fn, in: in, out: out}, nil
}

type typedTool[In, Out any] struct {
	cfg Config
	fn  func(context.Context, In) (Out, error)
	in  map[string]any
	out map[string]any
}

func (t *typedTool[In, Out]) Name() string                 { return t.cfg.Name }
func (t *typedTool[In, Out]) Description() string          { return t.cfg.Description }
func (t *typedTool[In, Out]) Provider() string             { return t.cfg.Provider }
func (t *typedTool[In, Out]) InputSchema() map[string]any  { return t.in }
func (t *typedTool[In, Out]) OutputSchema() map[string]any { return t.out }

func (t *typedTool[In, Out]) Call(ctx context.Context, args json.RawMessage) (any, error) {
	var input In
	if len(bytes.TrimSpace(args)) > 0 {
		if err := json.Unmarshal(args, &input); err != nil {
			return nil, apperr.Invalid("", "invalid arguments for %s: %v", t.cfg.Name, err)
		}
	}
	return t.fn(ctx, input)
}

// Schema reflects a JSON schema for T with every definition inlined.
func Schema[T any]() (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	data, err := json.Marshal(reflector.Reflect(new(T)))
	if err != nil {
		return nil, err
	}
	var schema map[string]any
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, err
	}
	delete(schema, "$schema")
	delete(schema, "$id")
	return schema, nil
}

// Failure is the uniform content returned to the model when a tool call fails.
type Failure struct {
	Success           bool   `json:"success"`
	Operation         string `json:"operation,omitempty"`
	Error             string `json:"error"`
	ProviderMessage   string `json:"providerMessage,omitempty"`
	ReconnectRequired bool   `json:"reconnectRequired,omitempty"`
}

// FailureFrom classifies err into model-facing failure content.
func FailureFrom(operation string, err error) Failure {
	f := Failure{Operation: operation, Error: err.Error()}
	var pe *apperr.ProviderError
	switch {
	case apperr.IsValidation(err):
		f.Error = err.Error() + ". Fix the arguments and try again."
	case errors.Is(err, apperr.ErrReauthorizationRequired):
		f.Error = "The connected account needs to be reconnected before this tool can be used."
		f.ReconnectRequired = true
	case errors.Is(err, apperr.ErrNotFoundOrInactive):
		f.Error = "This connection is no longer available."
	case errors.As(err, &pe):
		f.ProviderMessage = pe.Message
		if pe.Operation != "" && f.Operation == "" {
			f.Operation = pe.Operation
		}
	}
	return f
}

// ValidEmail reports whether s is a bare email address such as "jane@example.com".
func ValidEmail(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return false
	}
	return addr.Name == "" && addr.Address == s && strings.Contains(s[strings.LastIndex(s, "@")+1:], ".")
}

// ParseISODateTime parses an RFC 3339 timestamp, e.g. "2024-06-01T15:00:00Z".
func ParseISODateTime(field, s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, apperr.Invalid(field, "is required")
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, apperr.Invalid(field, "must be an ISO 8601 datetime like 2024-06-01T15:00:00Z")
	}
	return t, nil
}
