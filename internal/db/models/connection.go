package models

import (
	"encoding/json"
	"time"
)

// Provider identifies the external service behind a Connection.
type Provider string

const (
	ProviderGoogleCalendar Provider = "google_calendar"
	ProviderHubSpot        Provider = "hubspot"
)

// Providers lists every provider a tool factory exists for.
var Providers = []Provider{ProviderGoogleCalendar, ProviderHubSpot}

// Known reports whether p is one of the supported providers.
func (p Provider) Known() bool {
	switch p {
	case ProviderGoogleCalendar, ProviderHubSpot:
		return true
	}
	return false
}

// Label is the human name of the provider.
func (p Provider) Label() string {
	switch p {
	case ProviderGoogleCalendar:
		return "Google Calendar"
	case ProviderHubSpot:
		return "HubSpot CRM"
	}
	return string(p)
}

// Connection stores an organization's OAuth credential for an external service.
// Connections are soft-deleted through IsActive and never removed, so agent links survive.
type Connection struct {
	ID             string     `gorm:"primaryKey" json:"id"`
	OrganizationID string     `gorm:"index" json:"organization_id"`
	Provider       Provider   `gorm:"index" json:"provider"`
	DisplayName    string     `json:"display_name"` // user chosen, e.g. "CEO Calendar"
	Description    string     `json:"description,omitempty"`
	AccountEmail   string     `json:"account_email,omitempty"`
	AccessToken    string     `json:"-"`
	RefreshToken   string     `json:"-"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"` // nil: treat as never expiring
	IsActive       bool       `gorm:"default:true" json:"is_active"`
	Scopes         string     `json:"-"` // JSON array of granted scopes
	ConnectedBy    string     `json:"connected_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// ScopeList decodes the stored scope array.
func (c *Connection) ScopeList() []string {
	if c.Scopes == "" {
		return nil
	}
	var scopes []string
	if err := json.Unmarshal([]byte(c.Scopes), &scopes); err != nil {
		return nil
	}
	return scopes
}

// SetScopes encodes scopes into the Scopes column.
func (c *Connection) SetScopes(scopes []string) {
	if len(scopes) == 0 {
		c.Scopes = ""
		return
	}
	data, _ := json.Marshal(scopes)
	c.Scopes = string(data)
}
