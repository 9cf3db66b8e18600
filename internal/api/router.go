// Package api wires the HTTP routes.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/pysugar/agent-nexus/internal/api/handlers"
	"github.com/pysugar/agent-nexus/internal/api/middleware"
	"github.com/pysugar/agent-nexus/internal/auth/oauth"
	"github.com/pysugar/agent-nexus/internal/metrics"
	"gorm.io/gorm"
)

// Deps are the services behind the routes.
type Deps struct {
	DB            *gorm.DB
	Agents        handlers.AgentCache
	Chat          handlers.Chatter
	Tokens        handlers.ConnectionRefresher
	Ingester      handlers.DocumentIngester
	OAuth         *oauth.Handler
	AdminPassword string
}

// NewRouter builds the service router.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	// ============================================
	// Public Routes (No Auth Required)
	// ============================================

	r.Get("/healthz", handlers.HealthHandler(d.DB, d.Agents))
	r.Handle("/metrics", metrics.Handler())

	// OAuth provider redirect; the single-use state carries the tenant
	if d.OAuth != nil {
		r.Get("/auth/{provider}/callback", d.OAuth.Callback)
	}

	// API key management (protected if an admin password is set)
	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.AdminAuth(d.AdminPassword))
		r.Get("/apikey", handlers.GetAPIKeyHandler(d.DB))
		r.Post("/apikey/regenerate", handlers.RegenerateAPIKeyHandler(d.DB))
	})

	// ============================================
	// Protected Routes (API Key Required)
	// ============================================

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(d.DB))
		r.Use(middleware.Tenant)

		// Connections
		r.Get("/connections", handlers.ConnectionsHandler(d.DB))
		if d.OAuth != nil {
			r.Post("/connect/{provider}", d.OAuth.Connect)
		}
		r.Patch("/connections/{id}", handlers.RenameConnectionHandler(d.DB))
		r.Post("/connections/{id}/disconnect", handlers.DisconnectConnectionHandler(d.DB, d.Agents))
		r.Post("/connections/{id}/refresh", handlers.RefreshConnectionHandler(d.DB, d.Tokens))

		// Agents
		r.Get("/agents", handlers.AgentsHandler(d.DB))
		r.Post("/agents", handlers.CreateAgentHandler(d.DB))
		r.Get("/agents/{id}", handlers.GetAgentHandler(d.DB))
		r.Put("/agents/{id}", handlers.UpdateAgentHandler(d.DB, d.Agents))
		r.Delete("/agents/{id}", handlers.DeleteAgentHandler(d.DB, d.Agents))
		r.Post("/agents/{id}/documents/{docId}", handlers.LinkDocumentHandler(d.DB))
		r.Delete("/agents/{id}/documents/{docId}", handlers.UnlinkDocumentHandler(d.DB))
		r.Get("/agents/{id}/tool-calls", handlers.ToolCallsHandler(d.DB))
		r.Post("/agents/{id}/chat", handlers.ChatHandler(d.DB, d.Agents, d.Chat))

		// Documents
		r.Get("/documents", handlers.DocumentsHandler(d.DB))
		r.Post("/documents", handlers.UploadDocumentHandler(d.Ingester))
	})

	return r
}
