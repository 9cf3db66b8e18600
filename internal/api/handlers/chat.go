package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/pysugar/agent-nexus/internal/agent"
	"github.com/pysugar/agent-nexus/internal/apperr"
	"github.com/pysugar/agent-nexus/internal/db"
	"github.com/pysugar/agent-nexus/internal/llm"
	"github.com/pysugar/agent-nexus/internal/logging"
	"gorm.io/gorm"
)

type chatRequest struct {
	Messages []llm.Message `json:"messages"`
	// Message is shorthand for a single user message.
	Message string `json:"message"`
}

func (c chatRequest) history() ([]llm.Message, error) {
	if len(c.Messages) > 0 {
		return c.Messages, nil
	}
	if strings.TrimSpace(c.Message) == "" {
		return nil, apperr.Invalid("messages", "at least one message is required")
	}
	return []llm.Message{{Role: llm.RoleUser, Content: c.Message}}, nil
}

// SetSSEHeaders sets standard headers for Server-Sent Events streaming.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

// ChatHandler streams one agent turn as Server-Sent Events. Errors found before the first
// byte is written are plain JSON errors; later ones arrive as an "error" event.
func ChatHandler(database *gorm.DB, agents AgentCache, chat Chatter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := db.GetAgent(database, tenantOf(r).OrganizationID, id); err != nil {
			writeError(w, r, err)
			return
		}

		var req chatRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		history, err := req.history()
		if err != nil {
			writeError(w, r, err)
			return
		}

		ra, err := agents.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, r, fmt.Errorf("streaming not supported"))
			return
		}
		SetSSEHeaders(w)
		w.Header().Set("X-Agent-Tools", strings.Join(ra.ToolNames(), ","))
		w.WriteHeader(http.StatusOK)

		emit := func(ev llm.Event) {
			data, _ := json.Marshal(ev)
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}

		if greeting(history) {
			logging.Printf(r.Context(), "👋 Greeting requested for agent %s", id)
		}
		if _, err := chat.Stream(r.Context(), ra, history, emit); err != nil {
			logging.Printf(r.Context(), "❌ Chat with agent %s failed: %v", id, err)
			emit(llm.Event{Type: llm.EventError, Error: err.Error()})
		}
	}
}

func greeting(history []llm.Message) bool {
	last := history[len(history)-1]
	return last.Role == llm.RoleUser && strings.TrimSpace(last.Content) == agent.GreetingSentinel
}
