package agent

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/pysugar/agent-nexus/internal/apperr"
	"github.com/pysugar/agent-nexus/internal/config"
	"github.com/pysugar/agent-nexus/internal/db"
	"github.com/pysugar/agent-nexus/internal/db/models"
	"github.com/pysugar/agent-nexus/internal/metrics"
	"github.com/pysugar/agent-nexus/internal/rag"
	"github.com/pysugar/agent-nexus/internal/tools"
	"github.com/pysugar/agent-nexus/internal/tools/calendar"
	"github.com/pysugar/agent-nexus/internal/tools/crm"
	"github.com/pysugar/agent-nexus/internal/tools/docsearch"
	"gorm.io/gorm"
)

// TokenSource hands out connections with a usable access token.
type TokenSource interface {
	EnsureValidToken(ctx context.Context, connectionID string, provider models.Provider) (*models.Connection, error)
}

// Options tunes how assembled tools reach their providers.
type Options struct {
	Model string
	// HTTPClient is shared by every provider tool; its Timeout bounds each provider call.
	HTTPClient *http.Client
	// CalendarEndpoint and HubSpotBaseURL override the public API hosts.
	CalendarEndpoint string
	HubSpotBaseURL   string
}

// Assembler turns a stored agent into a RuntimeAgent.
type Assembler struct {
	db       *gorm.DB
	tokens   TokenSource
	embedder rag.Embedder
	index    rag.Index
	opts     Options
}

// NewAssembler creates an assembler. An empty Options.Model falls back to the default chat model.
func NewAssembler(gdb *gorm.DB, tokens TokenSource, embedder rag.Embedder, index rag.Index, opts Options) *Assembler {
	if opts.Model == "" {
		opts.Model = config.DefaultChatModel
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	return &Assembler{db: gdb, tokens: tokens, embedder: embedder, index: index, opts: opts}
}

// Build loads the agent and assembles its tools. A connection whose tool cannot be built is
// left out; only a missing or inactive agent fails the build.
func (a *Assembler) Build(ctx context.Context, agentID string) (*RuntimeAgent, error) {
	ra, err := a.build(ctx, agentID)
	if err != nil {
		metrics.AgentBuilds.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.AgentBuilds.WithLabelValues("success").Inc()
	return ra, nil
}

func (a *Assembler) build(ctx context.Context, agentID string) (*RuntimeAgent, error) {
	stored, err := db.GetActiveAgent(a.db, agentID)
	if err != nil {
		return nil, err
	}

	links, err := db.LinkedConnections(a.db, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load connections for agent %s: %w", agentID, err)
	}
	docIDs, err := db.LinkedDocumentIDs(a.db, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents for agent %s: %w", agentID, err)
	}
	log.Printf("🤖 Assembling agent %s (%s): %d connections, %d documents", stored.Name, agentID, len(links), len(docIDs))

	search, err := docsearch.New(agentID, a.db, a.embedder, a.index)
	if err != nil {
		return nil, err
	}
	built := []tools.Tool{search}

	for _, link := range links {
		if !link.IsActive {
			log.Printf("⚠️ Skipping disconnected connection %s (%s) for agent %s", link.DisplayName, link.ConnectionID, agentID)
			continue
		}
		t, err := a.connectionTool(link)
		if err != nil {
			log.Printf("❌ Failed to create tool %s for %s: %v", link.ToolAlias, link.DisplayName, err)
			continue
		}
		built = append(built, t)
		log.Printf("🛠️ %s tool created: %s", link.Provider.Label(), link.ToolAlias)
	}

	ra := NewRuntimeAgent(stored.ID, stored.OrganizationID, stored.Name, a.opts.Model, withGreeting(stored.Instructions), built)
	log.Printf("✅ Agent %s ready with tools %v", agentID, ra.ToolNames())
	return ra, nil
}

// connectionTool binds the provider tool for link. Tokens are checked on every call, so a
// connection that cannot refresh right now still gets its tool and reports the failure.
func (a *Assembler) connectionTool(link models.LinkedConnection) (tools.Tool, error) {
	switch link.Provider {
	case models.ProviderGoogleCalendar:
		return calendar.New(calendar.Binding{
			ConnectionID: link.ConnectionID,
			DisplayName:  link.DisplayName,
			Alias:        link.ToolAlias,
		}, calendar.Options{
			Tokens:     a.tokens,
			Endpoint:   a.opts.CalendarEndpoint,
			HTTPClient: a.opts.HTTPClient,
		})
	case models.ProviderHubSpot:
		return crm.New(crm.Binding{
			ConnectionID: link.ConnectionID,
			DisplayName:  link.DisplayName,
			Alias:        link.ToolAlias,
		}, crm.Options{
			Tokens:     a.tokens,
			BaseURL:    a.opts.HubSpotBaseURL,
			HTTPClient: a.opts.HTTPClient,
		})
	default:
		return nil, fmt.Errorf("%w: %s", apperr.ErrUnsupportedProvider, link.Provider)
	}
}
