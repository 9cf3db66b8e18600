package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pysugar/agent-nexus/internal/apperr"
	"github.com/pysugar/agent-nexus/internal/db"
	"github.com/pysugar/agent-nexus/internal/db/models"
	"github.com/pysugar/agent-nexus/internal/logging"
	"github.com/pysugar/agent-nexus/internal/toolalias"
	"gorm.io/gorm"
)

type connectionView struct {
	models.Connection
	ProviderLabel string   `json:"provider_label"`
	ToolAlias     string   `json:"tool_alias"`
	Scopes        []string `json:"scopes,omitempty"`
}

func viewConnection(c models.Connection) connectionView {
	return connectionView{
		Connection:    c,
		ProviderLabel: c.Provider.Label(),
		ToolAlias:     toolalias.Generate(c.DisplayName),
		Scopes:        c.ScopeList(),
	}
}

// ConnectionsHandler lists the organization's active connections.
func ConnectionsHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conns, err := db.ListActiveConnections(database, tenantOf(r).OrganizationID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		views := make([]connectionView, 0, len(conns))
		for _, c := range conns {
			views = append(views, viewConnection(c))
		}
		writeJSON(w, http.StatusOK, map[string]any{"connections": views})
	}
}

// RenameConnectionHandler changes a connection's display name. Aliases already frozen on
// agents are not touched.
func RenameConnectionHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			DisplayName string `json:"display_name"`
		}
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, r, err)
			return
		}
		org, id := tenantOf(r).OrganizationID, chi.URLParam(r, "id")
		if err := db.RenameConnection(database, org, id, body.DisplayName); err != nil {
			writeError(w, r, err)
			return
		}
		conn, err := db.GetConnection(database, id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, viewConnection(*conn))
	}
}

// DisconnectConnectionHandler soft-deletes a connection and evicts every agent using it.
func DisconnectConnectionHandler(database *gorm.DB, cache AgentCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		agentIDs, err := db.DisconnectConnection(database, tenantOf(r).OrganizationID, id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		cache.Invalidate(agentIDs...)
		logging.Printf(r.Context(), "🔌 Connection %s disconnected, %d agents affected", id, len(agentIDs))
		writeJSON(w, http.StatusOK, map[string]any{"status": "disconnected", "affected_agents": agentIDs})
	}
}

// RefreshConnectionHandler forces a token refresh for one connection.
func RefreshConnectionHandler(database *gorm.DB, tokens ConnectionRefresher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		conn, err := db.GetConnection(database, id)
		if err == nil && conn.OrganizationID != tenantOf(r).OrganizationID {
			err = fmt.Errorf("connection %s: %w", id, apperr.ErrNotFoundOrInactive)
		}
		if err != nil {
			writeError(w, r, err)
			return
		}

		refreshed, err := tokens.RefreshConnection(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, viewConnection(*refreshed))
	}
}
