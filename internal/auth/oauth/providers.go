// Package oauth holds the OAuth client configuration for each external provider and the
// connect start and callback handlers that create Connections.
package oauth

import (
	"fmt"
	"strings"

	"github.com/pysugar/agent-nexus/internal/config"
	"github.com/pysugar/agent-nexus/internal/db/models"
	"golang.org/x/oauth2"
	googleOAuth "golang.org/x/oauth2/google"
)

// HubSpotEndpoint is HubSpot's OAuth 2.0 endpoint. Client credentials travel in the form body.
var HubSpotEndpoint = oauth2.Endpoint{
	AuthURL:   "https://app.hubspot.com/oauth/authorize",
	TokenURL:  "https://api.hubapi.com/oauth/v1/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

// GoogleCalendarScopes grants event read/write plus free/busy and the account email.
var GoogleCalendarScopes = []string{
	"https://www.googleapis.com/auth/calendar.events",
	"https://www.googleapis.com/auth/calendar.freebusy",
	"https://www.googleapis.com/auth/userinfo.email",
}

// HubSpotScopes grants contact read/write.
var HubSpotScopes = []string{
	"crm.objects.contacts.read",
	"crm.objects.contacts.write",
	"oauth",
}

// Providers resolves the oauth2.Config for each supported provider.
type Providers struct {
	baseURL string
	clients map[models.Provider]config.OAuthClient
}

// NewProviders builds provider configs from the loaded settings.
func NewProviders(cfg *config.Config) *Providers {
	return &Providers{
		baseURL: strings.TrimRight(cfg.Server.BaseURL, "/"),
		clients: map[models.Provider]config.OAuthClient{
			models.ProviderGoogleCalendar: cfg.Google,
			models.ProviderHubSpot:        cfg.HubSpot,
		},
	}
}

// Config returns the OAuth config for provider with the callback URL filled in.
func (p *Providers) Config(provider models.Provider) (*oauth2.Config, error) {
	client, ok := p.clients[provider]
	if !ok {
		return nil, fmt.Errorf("oauth config for %q: unsupported provider", provider)
	}

	var (
		endpoint oauth2.Endpoint
		scopes   []string
	)
	switch provider {
	case models.ProviderGoogleCalendar:
		endpoint, scopes = googleOAuth.Endpoint, GoogleCalendarScopes
	case models.ProviderHubSpot:
		endpoint, scopes = HubSpotEndpoint, HubSpotScopes
	}
	if client.AuthURL != "" {
		endpoint.AuthURL = client.AuthURL
	}
	if client.TokenURL != "" {
		endpoint.TokenURL = client.TokenURL
	}

	return &oauth2.Config{
		ClientID:     client.ClientID,
		ClientSecret: client.ClientSecret,
		RedirectURL:  fmt.Sprintf("%s/auth/%s/callback", p.baseURL, provider),
		Scopes:       scopes,
		Endpoint:     endpoint,
	}, nil
}

// Configured reports whether client credentials are present for provider.
func (p *Providers) Configured(provider models.Provider) bool {
	client, ok := p.clients[provider]
	return ok && strings.TrimSpace(client.ClientID) != "" && strings.TrimSpace(client.ClientSecret) != ""
}

// APIBaseURL returns the provider API base override, or "" for the public default.
func (p *Providers) APIBaseURL(provider models.Provider) string {
	return p.clients[provider].APIBaseURL
}
