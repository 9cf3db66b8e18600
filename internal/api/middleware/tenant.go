// Package middleware holds the HTTP middleware in front of the /api routes.
package middleware

import (
	"net/http"
	"strings"

	"github.com/pysugar/agent-nexus/internal/logging"
)

const (
	HeaderRequestID      = "X-Request-ID"
	HeaderOrganizationID = "X-Organization-ID"
	HeaderUserID         = "X-User-ID"
)

// RequestID takes X-Request-ID from the request or generates one, stores it in the context
// and echoes it on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderRequestID))
		if id == "" {
			id = logging.GenerateRequestID()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

// Tenant requires X-Organization-ID and records it with the optional X-User-ID. Session
// handling lives in front of this service; these headers are what it forwards.
func Tenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		org := strings.TrimSpace(r.Header.Get(HeaderOrganizationID))
		if org == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error": "X-Organization-ID header is required"}`))
			return
		}
		user := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if !logging.ValidTenantID(org) || (user != "" && !logging.ValidTenantID(user)) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error": "invalid X-Organization-ID or X-User-ID"}`))
			return
		}
		t := logging.Tenant{OrganizationID: org, UserID: user}
		next.ServeHTTP(w, r.WithContext(logging.WithTenant(r.Context(), t)))
	})
}
