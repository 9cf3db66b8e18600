package oauth

import (
	"log"

	"github.com/pysugar/agent-nexus/internal/auth/token"
	"github.com/pysugar/agent-nexus/internal/db/models"
)

// Refreshers returns a token refresher for every provider with configured credentials.
func (p *Providers) Refreshers() map[models.Provider]token.Refresher {
	out := make(map[models.Provider]token.Refresher, len(models.Providers))
	for _, provider := range models.Providers {
		if !p.Configured(provider) {
			log.Printf("⚠️  %s OAuth client not configured, expired credentials cannot be refreshed", provider.Label())
		}
		cfg, err := p.Config(provider)
		if err != nil {
			continue
		}
		out[provider] = &token.OAuthRefresher{Config: cfg}
	}
	return out
}
