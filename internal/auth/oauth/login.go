package oauth

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/pysugar/agent-nexus/internal/db/models"
	"github.com/pysugar/agent-nexus/internal/logging"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

// Handler serves the connect start and /auth/{provider}/callback.
type Handler struct {
	db        *gorm.DB
	providers *Providers
	states    *stateStore
	identity  identityFetcher
}

// NewHandler creates the OAuth connect handler.
func NewHandler(db *gorm.DB, providers *Providers) *Handler {
	return &Handler{
		db:        db,
		providers: providers,
		states:    newStateStore(),
		identity:  fetchIdentity,
	}
}

// isPrivateIP checks if the host is a private (non-loopback) IP address
func isPrivateIP(host string) bool {
	hostOnly := host
	if h, _, err := net.SplitHostPort(host); err == nil {
		hostOnly = h
	}
	if hostOnly == "localhost" {
		return false
	}
	ip := net.ParseIP(hostOnly)
	if ip == nil || ip.IsLoopback() {
		return false
	}
	return ip.IsPrivate()
}

// Connect starts a connect flow for the calling tenant and returns the provider's consent
// URL as JSON. It sits behind API key auth; the organization comes from the tenant context,
// never from the query. Query: name (connection display name), description.
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	provider := models.Provider(chi.URLParam(r, "provider"))
	if !provider.Known() {
		writeJSONError(w, http.StatusNotFound, "Unsupported provider")
		return
	}
	if !h.providers.Configured(provider) {
		writeJSONError(w, http.StatusServiceUnavailable, provider.Label()+" OAuth client is not configured")
		return
	}

	tenant, ok := logging.GetTenant(r.Context())
	if !ok || tenant.OrganizationID == "" {
		writeJSONError(w, http.StatusBadRequest, "Missing organization")
		return
	}
	q := r.URL.Query()
	name := strings.TrimSpace(q.Get("name"))
	if name == "" {
		name = provider.Label()
	}

	config, err := h.providers.Config(provider)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	state := h.states.put(pendingConnect{
		OrganizationID: tenant.OrganizationID,
		UserID:         tenant.UserID,
		DisplayName:    name,
		Description:    strings.TrimSpace(q.Get("description")),
		Provider:       provider,
	})

	opts := []oauth2.AuthCodeOption{oauth2.AccessTypeOffline}
	if provider == models.ProviderGoogleCalendar {
		opts = append(opts, oauth2.ApprovalForce)
		// Google requires device_id and device_name for private IP redirect hosts
		if u, err := url.Parse(config.RedirectURL); err == nil && isPrivateIP(u.Host) {
			deviceID := make([]byte, 16)
			rand.Read(deviceID)
			opts = append(opts,
				oauth2.SetAuthURLParam("device_id", hex.EncodeToString(deviceID)),
				oauth2.SetAuthURLParam("device_name", "AgentNexus"),
			)
		}
	}

	logging.Printf(r.Context(), "🔐 Starting %s connect (%q)", provider.Label(), name)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"provider":    string(provider),
		"consent_url": config.AuthCodeURL(state, opts...),
	})
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
