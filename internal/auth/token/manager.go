// Package token keeps provider access tokens fresh. Every provider call goes through
// EnsureValidToken immediately before it is made.
package token

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/pysugar/agent-nexus/internal/apperr"
	"github.com/pysugar/agent-nexus/internal/db"
	"github.com/pysugar/agent-nexus/internal/db/models"
	"github.com/pysugar/agent-nexus/internal/metrics"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const (
	// ExpiryBuffer is how close to expiry a token may get before it is refreshed.
	ExpiryBuffer = 5 * time.Minute

	// defaultExpiresIn applies when the provider omits expires_in.
	defaultExpiresIn = 3600 * time.Second

	// proactiveWindow is how far ahead the background loop looks for expiring tokens.
	proactiveWindow = 20 * time.Minute

	// refreshTimeout bounds one provider refresh, whichever caller started it.
	refreshTimeout = 30 * time.Second
)

// Refresher exchanges a refresh token for a new access token at one provider.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// OAuthRefresher runs the standard refresh_token grant against Config's token endpoint.
type OAuthRefresher struct {
	Config *oauth2.Config
}

func (r *OAuthRefresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	return r.Config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
}

// Manager handles token lifecycle including refresh
type Manager struct {
	db         *gorm.DB
	refreshers map[models.Provider]Refresher
	flights    singleflight.Group
	now        func() time.Time
}

// NewManager creates a new token manager
func NewManager(db *gorm.DB, refreshers map[models.Provider]Refresher) *Manager {
	return &Manager{
		db:         db,
		refreshers: refreshers,
		now:        time.Now,
	}
}

// EnsureValidToken returns the connection with an access token valid for at least
// ExpiryBuffer, refreshing it first when needed.
func (m *Manager) EnsureValidToken(ctx context.Context, connectionID string, provider models.Provider) (*models.Connection, error) {
	conn, err := db.GetConnection(m.db, connectionID)
	if err != nil {
		return nil, err
	}
	if conn.Provider != provider {
		return nil, fmt.Errorf("connection %s is %s, not %s: %w", connectionID, conn.Provider, provider, apperr.ErrNotFoundOrInactive)
	}
	if !m.needsRefresh(conn) {
		return conn, nil
	}
	if conn.RefreshToken == "" {
		log.Printf("🔒 Connection %s (%s) expired without a refresh token", conn.ID, conn.DisplayName)
		metrics.TokenRefreshes.WithLabelValues(string(provider), "reauth").Inc()
		return nil, fmt.Errorf("connection %s: %w", connectionID, apperr.ErrReauthorizationRequired)
	}
	return m.refresh(ctx, connectionID, false)
}

// RefreshConnection forces a refresh regardless of the current expiry.
func (m *Manager) RefreshConnection(ctx context.Context, connectionID string) (*models.Connection, error) {
	return m.refresh(ctx, connectionID, true)
}

func (m *Manager) needsRefresh(conn *models.Connection) bool {
	return conn.ExpiresAt != nil && conn.ExpiresAt.Before(m.now().Add(ExpiryBuffer))
}

// refresh collapses concurrent refreshes of one connection into a single provider call.
// Each caller gets its own copy of the result. The flight is detached from the caller that
// started it, so a cancelled request only stops its own wait.
func (m *Manager) refresh(ctx context.Context, connectionID string, force bool) (*models.Connection, error) {
	key := connectionID
	if force {
		key += ":force"
	}
	ch := m.flights.DoChan(key, func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return m.doRefresh(flightCtx, connectionID, force)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			log.Printf("🔄 Joined in-flight refresh for connection %s", connectionID)
		}
		conn := *res.Val.(*models.Connection)
		return &conn, nil
	}
}

func (m *Manager) doRefresh(ctx context.Context, connectionID string, force bool) (*models.Connection, error) {
	// Re-read: another flight may have finished the refresh already.
	conn, err := db.GetConnection(m.db, connectionID)
	if err != nil {
		return nil, err
	}
	if !force && !m.needsRefresh(conn) {
		return conn, nil
	}
	if conn.RefreshToken == "" {
		metrics.TokenRefreshes.WithLabelValues(string(conn.Provider), "reauth").Inc()
		return nil, fmt.Errorf("connection %s: %w", connectionID, apperr.ErrReauthorizationRequired)
	}

	refresher, ok := m.refreshers[conn.Provider]
	if !ok {
		return nil, fmt.Errorf("refresh %s: %w", conn.Provider, apperr.ErrUnsupportedProvider)
	}

	newToken, err := refresher.Refresh(ctx, conn.RefreshToken)
	if err != nil {
		log.Printf("❌ Refresh token failed for %s (%s): %v", conn.DisplayName, conn.ID, err)
		if isPermanentRefreshError(err) {
			metrics.TokenRefreshes.WithLabelValues(string(conn.Provider), "reauth").Inc()
			log.Printf("🔒 Connection %s needs to be reconnected", conn.ID)
			return nil, fmt.Errorf("connection %s: %w: %v", connectionID, apperr.ErrReauthorizationRequired, err)
		}
		metrics.TokenRefreshes.WithLabelValues(string(conn.Provider), "error").Inc()
		return nil, apperr.ProviderFailed(string(conn.Provider), "refresh_token", err)
	}

	refreshToken := conn.RefreshToken
	// Persist rotated refresh token if provided (RFC 6749 compliance)
	if newToken.RefreshToken != "" && newToken.RefreshToken != conn.RefreshToken {
		log.Printf("🔄 Rotating refresh token for: %s", conn.ID)
		refreshToken = newToken.RefreshToken
	}
	expiresAt := m.expiryOf(newToken)

	if err := db.UpdateConnectionTokens(m.db, conn.ID, newToken.AccessToken, refreshToken, expiresAt); err != nil {
		metrics.TokenRefreshes.WithLabelValues(string(conn.Provider), "error").Inc()
		return nil, fmt.Errorf("failed to save refreshed token: %w", err)
	}
	metrics.TokenRefreshes.WithLabelValues(string(conn.Provider), "success").Inc()
	log.Printf("✅ Refreshed token for: %s (token: %s, expires: %s)", conn.ID, maskToken(newToken.AccessToken), expiresAt.Format(time.RFC3339))

	return db.GetConnection(m.db, conn.ID)
}

func (m *Manager) expiryOf(t *oauth2.Token) time.Time {
	now := m.now()
	switch {
	case t.ExpiresIn > 0:
		return now.Add(time.Duration(t.ExpiresIn) * time.Second)
	case !t.Expiry.IsZero():
		return t.Expiry
	default:
		return now.Add(defaultExpiresIn)
	}
}

// StartRefreshLoop refreshes connections about to expire every interval until ctx is done.
func (m *Manager) StartRefreshLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.RefreshExpiring(ctx)
			}
		}
	}()
	log.Printf("🔄 Token refresh loop started (interval: %s)", interval)
}

// RefreshExpiring refreshes every active connection expiring within the proactive window.
// It returns how many refreshes succeeded.
func (m *Manager) RefreshExpiring(ctx context.Context) int {
	conns, err := db.ListRefreshableConnections(m.db, m.now().Add(proactiveWindow))
	if err != nil {
		log.Printf("⚠️ Failed to list expiring connections: %v", err)
		return 0
	}
	refreshed := 0
	for _, conn := range conns {
		if _, err := m.refresh(ctx, conn.ID, true); err != nil {
			if errors.Is(err, apperr.ErrReauthorizationRequired) {
				continue
			}
			log.Printf("⏳ Transient refresh failure for %s, will retry: %v", conn.ID, err)
			continue
		}
		refreshed++
	}
	return refreshed
}

func maskToken(t string) string {
	if len(t) < 20 {
		return t
	}
	return "..." + t[len(t)-12:]
}

func isPermanentRefreshError(err error) bool {
	if err == nil {
		return false
	}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		switch re.ErrorCode {
		case "invalid_grant", "invalid_client", "unauthorized_client":
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	permanentMarkers := []string{
		"invalid_grant",
		"invalid_client",
		"unauthorized_client",
		"token has been expired or revoked",
		"revoked",
	}
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
