package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pysugar/agent-nexus/internal/db"
	"github.com/pysugar/agent-nexus/internal/db/models"
	"github.com/pysugar/agent-nexus/internal/logging"
	"gorm.io/gorm"
)

type agentView struct {
	models.Agent
	Connections []models.LinkedConnection `json:"connections"`
	DocumentIDs []string                  `json:"document_ids"`
}

func viewAgent(database *gorm.DB, a *models.Agent) (agentView, error) {
	links, err := db.LinkedConnections(database, a.ID)
	if err != nil {
		return agentView{}, err
	}
	docIDs, err := db.LinkedDocumentIDs(database, a.ID)
	if err != nil {
		return agentView{}, err
	}
	if links == nil {
		links = []models.LinkedConnection{}
	}
	if docIDs == nil {
		docIDs = []string{}
	}
	return agentView{Agent: *a, Connections: links, DocumentIDs: docIDs}, nil
}

// AgentsHandler lists the organization's active agents.
func AgentsHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agents, err := db.ListAgents(database, tenantOf(r).OrganizationID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if agents == nil {
			agents = []models.Agent{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"agents": agents})
	}
}

// CreateAgentHandler stores an agent with its connection and document links.
func CreateAgentHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name          string   `json:"name"`
			Instructions  string   `json:"instructions"`
			ConnectionIDs []string `json:"connection_ids"`
			DocumentIDs   []string `json:"document_ids"`
		}
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, r, err)
			return
		}
		t := tenantOf(r)
		a := &models.Agent{
			OrganizationID: t.OrganizationID,
			Name:           body.Name,
			Instructions:   body.Instructions,
			CreatedBy:      t.UserID,
		}
		if err := db.CreateAgent(database, a, body.ConnectionIDs, body.DocumentIDs); err != nil {
			writeError(w, r, err)
			return
		}
		view, err := viewAgent(database, a)
		if err != nil {
			writeError(w, r, err)
			return
		}
		logging.Printf(r.Context(), "🤖 Agent %s (%s) created with %d connections", a.Name, a.ID, len(view.Connections))
		writeJSON(w, http.StatusCreated, view)
	}
}

// GetAgentHandler returns an agent with its links.
func GetAgentHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := db.GetAgent(database, tenantOf(r).OrganizationID, chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		view, err := viewAgent(database, a)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// UpdateAgentHandler applies a partial update. connection_ids, when present, replaces the
// whole connection set. The cached runtime agent is dropped after any successful update
// since name, instructions and tools are all baked into it.
func UpdateAgentHandler(database *gorm.DB, cache AgentCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name          *string   `json:"name"`
			Instructions  *string   `json:"instructions"`
			IsActive      *bool     `json:"is_active"`
			ConnectionIDs *[]string `json:"connection_ids"`
		}
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, r, err)
			return
		}
		id := chi.URLParam(r, "id")
		a, connectionsChanged, err := db.UpdateAgent(database, tenantOf(r).OrganizationID, id, db.AgentUpdate{
			Name:          body.Name,
			Instructions:  body.Instructions,
			IsActive:      body.IsActive,
			ConnectionIDs: body.ConnectionIDs,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		cache.Invalidate(id)
		if connectionsChanged {
			logging.Printf(r.Context(), "🔄 Agent %s connections replaced", id)
		}

		view, err := viewAgent(database, a)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// DeleteAgentHandler soft-deletes an agent.
func DeleteAgentHandler(database *gorm.DB, cache AgentCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := db.DeleteAgent(database, tenantOf(r).OrganizationID, id); err != nil {
			writeError(w, r, err)
			return
		}
		cache.Invalidate(id)
		writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
	}
}

// LinkDocumentHandler adds a document to an agent's knowledge base. The cached agent keeps
// working since search_docs resolves linked documents on every call.
func LinkDocumentHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		existed, err := db.LinkDocument(database, tenantOf(r).OrganizationID, chi.URLParam(r, "id"), chi.URLParam(r, "docId"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		status := http.StatusCreated
		if existed {
			status = http.StatusOK
		}
		writeJSON(w, status, map[string]any{"status": "linked", "already_linked": existed})
	}
}

// UnlinkDocumentHandler removes a document from an agent's knowledge base.
func UnlinkDocumentHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.UnlinkDocument(database, tenantOf(r).OrganizationID, chi.URLParam(r, "id"), chi.URLParam(r, "docId")); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "unlinked"})
	}
}

// ToolCallsHandler returns an agent's recent tool calls, newest first.
func ToolCallsHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := db.GetAgent(database, tenantOf(r).OrganizationID, id); err != nil {
			writeError(w, r, err)
			return
		}
		calls, err := db.ListToolCalls(database, id, queryInt(r, "limit", 100))
		if err != nil {
			writeError(w, r, err)
			return
		}
		if calls == nil {
			calls = []models.ToolCallLog{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"tool_calls": calls})
	}
}
