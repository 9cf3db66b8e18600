package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pysugar/agent-nexus/internal/db"
	"github.com/pysugar/agent-nexus/internal/db/models"
	"golang.org/x/oauth2"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

const hubSpotAPIBase = "https://api.hubapi.com"

type identityFetcher func(ctx context.Context, provider models.Provider, client *http.Client, token *oauth2.Token, apiBase string) (string, error)

// Callback exchanges the authorization code and stores a new active Connection.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	provider := models.Provider(chi.URLParam(r, "provider"))
	q := r.URL.Query()

	if errCode := q.Get("error"); errCode != "" {
		http.Error(w, "Authorization denied: "+errCode, http.StatusBadRequest)
		return
	}

	pending, ok := h.states.take(q.Get("state"))
	if !ok || pending.Provider != provider {
		http.Error(w, "Invalid state token", http.StatusBadRequest)
		return
	}

	config, err := h.providers.Config(provider)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	ctx := r.Context()
	token, err := config.Exchange(ctx, q.Get("code"))
	if err != nil {
		http.Error(w, fmt.Sprintf("Token exchange failed: %v", err), http.StatusBadGateway)
		return
	}

	email, err := h.identity(ctx, provider, config.Client(ctx, token), token, h.providers.APIBaseURL(provider))
	if err != nil {
		// The connection is still usable without an email.
		log.Printf("⚠️  Failed to fetch %s account identity: %v", provider.Label(), err)
	}

	conn := &models.Connection{
		OrganizationID: pending.OrganizationID,
		Provider:       provider,
		DisplayName:    pending.DisplayName,
		Description:    pending.Description,
		AccountEmail:   email,
		AccessToken:    token.AccessToken,
		RefreshToken:   token.RefreshToken,
		ConnectedBy:    pending.UserID,
	}
	if expiry := expiryOf(token, time.Now()); !expiry.IsZero() {
		conn.ExpiresAt = &expiry
	}
	conn.SetScopes(grantedScopes(token, config.Scopes))

	if err := db.CreateConnection(h.db, conn); err != nil {
		http.Error(w, fmt.Sprintf("Failed to save connection: %v", err), http.StatusInternalServerError)
		return
	}
	log.Printf("✅ Connected %s %q for org %s (%s)", provider.Label(), conn.DisplayName, conn.OrganizationID, conn.ID)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="UTF-8">
	<title>Connection Added</title>
	<style>
		body { font-family: -apple-system, BlinkMacSystemFont, sans-serif; max-width: 600px; margin: 50px auto; padding: 20px; background: #1a1a2e; color: #eee; }
		.success { color: #4ade80; }
		code { background: #374151; padding: 2px 6px; border-radius: 4px; color: #fbbf24; }
	</style>
</head>
<body>
	<h1 class="success">✅ Connection Added!</h1>
	<p><strong>Name:</strong> %s</p>
	<p><strong>Provider:</strong> %s</p>
	<p><strong>Account:</strong> %s</p>
	<p><strong>Connection ID:</strong> <code>%s</code></p>
	<p>You can close this window.</p>
</body>
</html>`, html.EscapeString(conn.DisplayName), provider.Label(), html.EscapeString(email), conn.ID)
}

// expiryOf prefers the provider's expires_in over the computed Expiry.
func expiryOf(token *oauth2.Token, now time.Time) time.Time {
	if token.ExpiresIn > 0 {
		return now.Add(time.Duration(token.ExpiresIn) * time.Second).UTC()
	}
	if !token.Expiry.IsZero() {
		return token.Expiry.UTC()
	}
	return time.Time{}
}

func grantedScopes(token *oauth2.Token, requested []string) []string {
	if raw, ok := token.Extra("scope").(string); ok && strings.TrimSpace(raw) != "" {
		return strings.Fields(raw)
	}
	return requested
}

func fetchIdentity(ctx context.Context, provider models.Provider, client *http.Client, token *oauth2.Token, apiBase string) (string, error) {
	switch provider {
	case models.ProviderGoogleCalendar:
		opts := []option.ClientOption{option.WithHTTPClient(client)}
		if apiBase != "" {
			opts = append(opts, option.WithEndpoint(apiBase))
		}
		svc, err := oauth2api.NewService(ctx, opts...)
		if err != nil {
			return "", err
		}
		info, err := svc.Userinfo.Get().Context(ctx).Do()
		if err != nil {
			return "", err
		}
		return info.Email, nil

	case models.ProviderHubSpot:
		if apiBase == "" {
			apiBase = hubSpotAPIBase
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			strings.TrimRight(apiBase, "/")+"/oauth/v1/access-tokens/"+token.AccessToken, nil)
		if err != nil {
			return "", err
		}
		resp, err := client.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("token info returned %s", resp.Status)
		}
		var info struct {
			User  string `json:"user"`
			HubID int64  `json:"hub_id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
			return "", err
		}
		return info.User, nil
	}
	return "", fmt.Errorf("no identity lookup for %s", provider)
}
