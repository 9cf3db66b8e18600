// Package toolalias turns connection display names into the machine-safe names agents
// expose their tools under.
package toolalias

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pysugar/agent-nexus/internal/db/models"
)

// MaxLen is the longest alias Generate produces.
const MaxLen = 50

// Reserved is taken by the document search tool on every agent.
const Reserved = "search_docs"

var (
	invalidChars = regexp.MustCompile(`[^a-z0-9\s]+`)
	whitespace   = regexp.MustCompile(`\s+`)
	validAlias   = regexp.MustCompile(`^[a-z0-9_]+$`)
)

// Generate derives an alias from a display name:
//
//	"CEO Calendar"       -> "ceo_calendar"
//	"Marketing @ HubSpot" -> "marketing_hubspot"
//
// The result is empty only when displayName has no ASCII letter, digit or space.
func Generate(displayName string) string {
	s := strings.ToLower(displayName)
	s = invalidChars.ReplaceAllString(s, "")
	s = whitespace.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if len(s) > MaxLen {
		s = s[:MaxLen]
	}
	return s
}

// Validate reports whether alias is usable as a tool name.
func Validate(alias string) bool {
	return len(alias) > 0 && len(alias) <= MaxLen && validAlias.MatchString(alias)
}

// Unique returns an alias for displayName that is not in taken. Collisions get a numeric
// suffix ("crm", "crm_2", ...). An empty alias falls back to the provider tag.
// The chosen alias is added to taken.
func Unique(displayName string, provider models.Provider, taken map[string]bool) string {
	base := Generate(displayName)
	if base == "" {
		base = string(provider)
	}
	alias := base
	for n := 2; taken[alias] || alias == Reserved; n++ {
		suffix := "_" + strconv.Itoa(n)
		trimmed := base
		if len(trimmed)+len(suffix) > MaxLen {
			trimmed = trimmed[:MaxLen-len(suffix)]
		}
		alias = trimmed + suffix
	}
	taken[alias] = true
	return alias
}

// ToolDisplayName renders "<name> (<provider label>)" for listings.
func ToolDisplayName(provider models.Provider, displayName string) string {
	return displayName + " (" + provider.Label() + ")"
}

// ToolDescription is the default description of a connection's tool.
func ToolDescription(provider models.Provider, displayName string) string {
	switch provider {
	case models.ProviderGoogleCalendar:
		return "Book meetings and manage calendar events for " + displayName
	case models.ProviderHubSpot:
		return "Manage contacts, leads, and CRM operations for " + displayName
	}
	return "Use " + displayName + " for " + string(provider) + " operations"
}
