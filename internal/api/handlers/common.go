// Package handlers implements the /api HTTP surface: connections, agents, documents and chat.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/pysugar/agent-nexus/internal/agent"
	"github.com/pysugar/agent-nexus/internal/apperr"
	"github.com/pysugar/agent-nexus/internal/db/models"
	"github.com/pysugar/agent-nexus/internal/llm"
	"github.com/pysugar/agent-nexus/internal/logging"
	"github.com/pysugar/agent-nexus/internal/rag"
)

// AgentCache hands out runtime agents and forgets them when their configuration changes.
type AgentCache interface {
	Get(ctx context.Context, agentID string) (*agent.RuntimeAgent, error)
	Invalidate(agentIDs ...string)
	Len() int
}

// Chatter runs one chat turn for a runtime agent.
type Chatter interface {
	Stream(ctx context.Context, ra *agent.RuntimeAgent, history []llm.Message, emit func(llm.Event)) (string, error)
}

// ConnectionRefresher forces a credential refresh.
type ConnectionRefresher interface {
	RefreshConnection(ctx context.Context, connectionID string) (*models.Connection, error)
}

// DocumentIngester indexes an uploaded document.
type DocumentIngester interface {
	Ingest(ctx context.Context, up rag.Upload) (*models.Document, error)
}

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		logging.Printf(r.Context(), "❌ %s %s failed: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, body)
}

func errorResponse(err error) (int, map[string]any) {
	body := map[string]any{"error": err.Error()}
	var pe *apperr.ProviderError
	switch {
	case apperr.IsValidation(err):
		return http.StatusBadRequest, body
	case errors.Is(err, apperr.ErrNotFoundOrInactive), errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound, body
	case errors.Is(err, apperr.ErrReauthorizationRequired):
		body["code"] = "reconnect_required"
		return http.StatusConflict, body
	case errors.Is(err, apperr.ErrUnsupportedProvider):
		return http.StatusBadRequest, body
	case errors.As(err, &pe):
		body["provider"] = pe.Provider
		return http.StatusBadGateway, body
	default:
		body["error"] = "internal error"
		return http.StatusInternalServerError, body
	}
}

// decodeJSON reads a JSON body into v. Malformed input is a validation error.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		return apperr.Invalid("", "invalid JSON body: %v", err)
	}
	return nil
}

// tenantOf returns the organization and user set by the Tenant middleware.
func tenantOf(r *http.Request) logging.Tenant {
	t, ok := logging.GetTenant(r.Context())
	if !ok {
		log.Printf("⚠️ %s %s reached a handler without tenant headers", r.Method, r.URL.Path)
	}
	return t
}

func queryInt(r *http.Request, name string, fallback int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return fallback
	}
	return v
}
