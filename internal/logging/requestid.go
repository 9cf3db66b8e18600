// Package logging carries request scoped identifiers through a context so log lines for one
// request, and the tool calls it triggers, can be correlated.
package logging

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

const (
	requestIDKey contextKey = "requestId"
	tenantKey    contextKey = "tenant"
)

// Tenant identifies who a request acts for.
type Tenant struct {
	OrganizationID string
	UserID         string
}

// GenerateRequestID creates an 8-character hex request ID.
func GenerateRequestID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context, or "".
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

var tenantIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidTenantID reports whether id is usable as an organization or user id. Ids end up in
// storage paths, so only letters, digits, '_' and '-' are accepted.
func ValidTenantID(id string) bool {
	return tenantIDPattern.MatchString(id)
}

// WithTenant injects the acting organization and user.
func WithTenant(ctx context.Context, t Tenant) context.Context {
	return context.WithValue(ctx, tenantKey, t)
}

// GetTenant returns the tenant stored by WithTenant. ok is false when none was set.
func GetTenant(ctx context.Context) (Tenant, bool) {
	t, ok := ctx.Value(tenantKey).(Tenant)
	return t, ok
}

// Prefix renders the identifiers in ctx as "[req=.. org=..] ", or "" when there are none.
func Prefix(ctx context.Context) string {
	var parts []string
	if id := GetRequestID(ctx); id != "" {
		parts = append(parts, "req="+id)
	}
	if t, ok := GetTenant(ctx); ok && t.OrganizationID != "" {
		parts = append(parts, "org="+t.OrganizationID)
	}
	if len(parts) == 0 {
		return ""
	}
	return "[" + strings.Join(parts, " ") + "] "
}

// Printf logs with the request prefix of ctx.
func Printf(ctx context.Context, format string, args ...any) {
	log.Print(Prefix(ctx) + fmt.Sprintf(format, args...))
}
