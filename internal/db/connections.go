package db

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pysugar/agent-nexus/internal/apperr"
	"github.com/pysugar/agent-nexus/internal/db/models"
	"gorm.io/gorm"
)

// CreateConnection stores a new active connection.
func CreateConnection(db *gorm.DB, conn *models.Connection) error {
	if !conn.Provider.Known() {
		return fmt.Errorf("%w: %s", apperr.ErrUnsupportedProvider, conn.Provider)
	}
	if strings.TrimSpace(conn.DisplayName) == "" {
		return apperr.Invalid("display_name", "is required")
	}
	if conn.ID == "" {
		conn.ID = newID()
	}
	if conn.ExpiresAt != nil {
		utc := conn.ExpiresAt.UTC()
		conn.ExpiresAt = &utc
	}
	conn.IsActive = true
	return db.Create(conn).Error
}

// GetConnection loads an active connection by id.
func GetConnection(db *gorm.DB, id string) (*models.Connection, error) {
	var conn models.Connection
	if err := db.Where("id = ?", id).First(&conn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("connection %s: %w", id, apperr.ErrNotFoundOrInactive)
		}
		return nil, err
	}
	if !conn.IsActive {
		return nil, fmt.Errorf("connection %s: %w", id, apperr.ErrNotFoundOrInactive)
	}
	return &conn, nil
}

// ListActiveConnections returns an organization's active connections, oldest first.
func ListActiveConnections(db *gorm.DB, organizationID string) ([]models.Connection, error) {
	var conns []models.Connection
	err := db.Where("organization_id = ? AND is_active = ?", organizationID, true).
		Order("created_at").
		Find(&conns).Error
	return conns, err
}

// RenameConnection changes a connection's display name. Aliases already frozen on agent
// links are left alone.
func RenameConnection(db *gorm.DB, organizationID, id, displayName string) error {
	if strings.TrimSpace(displayName) == "" {
		return apperr.Invalid("display_name", "is required")
	}
	res := db.Model(&models.Connection{}).
		Where("id = ? AND organization_id = ? AND is_active = ?", id, organizationID, true).
		Updates(map[string]any{"display_name": displayName, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("connection %s: %w", id, apperr.ErrNotFoundOrInactive)
	}
	return nil
}

// DisconnectConnection soft-deletes a connection and returns the ids of agents linked to it.
func DisconnectConnection(db *gorm.DB, organizationID, id string) ([]string, error) {
	res := db.Model(&models.Connection{}).
		Where("id = ? AND organization_id = ?", id, organizationID).
		Updates(map[string]any{"is_active": false, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("connection %s: %w", id, apperr.ErrNotFoundOrInactive)
	}

	var agentIDs []string
	err := db.Model(&models.AgentConnection{}).
		Where("connection_id = ?", id).
		Distinct().
		Pluck("agent_id", &agentIDs).Error
	return agentIDs, err
}

// UpdateConnectionTokens writes the access token, refresh token and expiry in a single
// UPDATE so readers never see a half-written token pair.
func UpdateConnectionTokens(db *gorm.DB, id, accessToken, refreshToken string, expiresAt time.Time) error {
	res := db.Model(&models.Connection{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"access_token":  accessToken,
			"refresh_token": refreshToken,
			"expires_at":    expiresAt.UTC(),
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("connection %s: %w", id, apperr.ErrNotFoundOrInactive)
	}
	return nil
}

// ListRefreshableConnections returns active connections holding a refresh token whose
// access token expires before threshold.
func ListRefreshableConnections(db *gorm.DB, threshold time.Time) ([]models.Connection, error) {
	var conns []models.Connection
	err := db.Where("is_active = ? AND refresh_token <> '' AND expires_at IS NOT NULL AND expires_at < ?",
		true, threshold.UTC()).
		Find(&conns).Error
	return conns, err
}
