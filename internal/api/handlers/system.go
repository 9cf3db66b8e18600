package handlers

import (
	"log"
	"net/http"
	"strings"

	"github.com/pysugar/agent-nexus/internal/db"
	"github.com/pysugar/agent-nexus/internal/version"
	"gorm.io/gorm"
)

// HealthHandler reports liveness, the build and how many agents are cached.
func HealthHandler(database *gorm.DB, agents AgentCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]any{
			"status":        "ok",
			"version":       version.String(),
			"cached_agents": agents.Len(),
		}
		if sqlDB, err := database.DB(); err != nil || sqlDB.PingContext(r.Context()) != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
		writeJSON(w, status, body)
	}
}

// GetAPIKeyHandler returns the current API key, masked unless reveal=true.
func GetAPIKeyHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiKey := db.GetAPIKey(database)
		masked := r.URL.Query().Get("reveal") != "true"
		if masked {
			apiKey = maskAPIKey(apiKey)
		}
		writeJSON(w, http.StatusOK, map[string]any{"api_key": apiKey, "masked": masked})
	}
}

// RegenerateAPIKeyHandler replaces the API key and returns the new one once.
func RegenerateAPIKeyHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiKey := db.RegenerateAPIKey(database)
		log.Printf("🔑 API key rotated: %s", maskAPIKey(apiKey))
		writeJSON(w, http.StatusOK, map[string]any{"api_key": apiKey, "masked": false})
	}
}

func maskAPIKey(apiKey string) string {
	if len(apiKey) <= 10 {
		return "***"
	}
	return apiKey[:6] + strings.Repeat("*", len(apiKey)-10) + apiKey[len(apiKey)-4:]
}
