package db

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pysugar/agent-nexus/internal/apperr"
	"github.com/pysugar/agent-nexus/internal/db/models"
	"github.com/pysugar/agent-nexus/internal/toolalias"
	"gorm.io/gorm"
)

// MinInstructionsLen is the shortest instruction text an agent accepts.
const MinInstructionsLen = 10

// AgentUpdate carries the optional fields of an agent update. A nil field is left as is;
// a non-nil ConnectionIDs replaces the whole connection set.
type AgentUpdate struct {
	Name          *string
	Instructions  *string
	IsActive      *bool
	ConnectionIDs *[]string
}

// CreateAgent stores a new agent and links it to the given connections and documents.
func CreateAgent(db *gorm.DB, agent *models.Agent, connectionIDs, documentIDs []string) error {
	if err := validateAgent(agent.Name, agent.Instructions); err != nil {
		return err
	}
	if agent.ID == "" {
		agent.ID = newID()
	}
	agent.IsActive = true

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(agent).Error; err != nil {
			return err
		}
		if err := linkConnections(tx, agent, connectionIDs); err != nil {
			return err
		}
		for _, docID := range dedupe(documentIDs) {
			if _, err := linkDocument(tx, agent.OrganizationID, agent.ID, docID); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetAgent loads an organization's agent, active or not.
func GetAgent(db *gorm.DB, organizationID, id string) (*models.Agent, error) {
	var agent models.Agent
	err := db.Where("id = ? AND organization_id = ?", id, organizationID).First(&agent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("agent %s: %w", id, apperr.ErrNotFoundOrInactive)
	}
	if err != nil {
		return nil, err
	}
	return &agent, nil
}

// GetActiveAgent loads an agent by id for assembly, failing if it is missing or inactive.
func GetActiveAgent(db *gorm.DB, id string) (*models.Agent, error) {
	var agent models.Agent
	err := db.Where("id = ?", id).First(&agent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !agent.IsActive) {
		return nil, fmt.Errorf("agent %s: %w", id, apperr.ErrNotFoundOrInactive)
	}
	if err != nil {
		return nil, err
	}
	return &agent, nil
}

// ListAgents returns an organization's active agents, oldest first.
func ListAgents(db *gorm.DB, organizationID string) ([]models.Agent, error) {
	var agents []models.Agent
	err := db.Where("organization_id = ? AND is_active = ?", organizationID, true).
		Order("created_at").
		Find(&agents).Error
	return agents, err
}

// UpdateAgent applies upd and reports whether the connection set was replaced, in which
// case the caller must invalidate the cached runtime agent.
func UpdateAgent(db *gorm.DB, organizationID, id string, upd AgentUpdate) (*models.Agent, bool, error) {
	agent, err := GetAgent(db, organizationID, id)
	if err != nil {
		return nil, false, err
	}

	name, instructions := agent.Name, agent.Instructions
	if upd.Name != nil {
		name = *upd.Name
	}
	if upd.Instructions != nil {
		instructions = *upd.Instructions
	}
	if err := validateAgent(name, instructions); err != nil {
		return nil, false, err
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		fields := map[string]any{
			"name":         name,
			"instructions": instructions,
			"updated_at":   time.Now().UTC(),
		}
		if upd.IsActive != nil {
			fields["is_active"] = *upd.IsActive
		}
		if err := tx.Model(&models.Agent{}).Where("id = ?", id).Updates(fields).Error; err != nil {
			return err
		}

		if upd.ConnectionIDs == nil {
			return nil
		}
		if err := tx.Where("agent_id = ?", id).Delete(&models.AgentConnection{}).Error; err != nil {
			return err
		}
		return linkConnections(tx, agent, *upd.ConnectionIDs)
	})
	if err != nil {
		return nil, false, err
	}

	updated, err := GetAgent(db, organizationID, id)
	return updated, upd.ConnectionIDs != nil, err
}

// DeleteAgent soft-deletes an agent.
func DeleteAgent(db *gorm.DB, organizationID, id string) error {
	res := db.Model(&models.Agent{}).
		Where("id = ? AND organization_id = ?", id, organizationID).
		Updates(map[string]any{"is_active": false, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("agent %s: %w", id, apperr.ErrNotFoundOrInactive)
	}
	return nil
}

// LinkedConnections returns an agent's connection links joined with their connections.
// Soft-deleted connections are included with IsActive=false.
func LinkedConnections(db *gorm.DB, agentID string) ([]models.LinkedConnection, error) {
	var links []models.LinkedConnection
	err := db.Table("agent_connections").
		Select("agent_connections.connection_id, agent_connections.tool_alias, " +
			"connections.display_name, connections.provider, connections.account_email, connections.is_active").
		Joins("JOIN connections ON connections.id = agent_connections.connection_id").
		Where("agent_connections.agent_id = ?", agentID).
		Order("agent_connections.created_at, agent_connections.tool_alias").
		Scan(&links).Error
	return links, err
}

// LinkedDocumentIDs returns the ids of documents in an agent's knowledge base.
func LinkedDocumentIDs(db *gorm.DB, agentID string) ([]string, error) {
	var ids []string
	err := db.Model(&models.AgentDocument{}).
		Where("agent_id = ?", agentID).
		Order("created_at").
		Pluck("document_id", &ids).Error
	return ids, err
}

// LinkDocument adds a document to an agent's knowledge base. It reports true when the
// link already existed.
func LinkDocument(db *gorm.DB, organizationID, agentID, documentID string) (bool, error) {
	if _, err := GetAgent(db, organizationID, agentID); err != nil {
		return false, err
	}
	return linkDocument(db, organizationID, agentID, documentID)
}

// UnlinkDocument removes a document from an agent's knowledge base.
func UnlinkDocument(db *gorm.DB, organizationID, agentID, documentID string) error {
	if _, err := GetAgent(db, organizationID, agentID); err != nil {
		return err
	}
	return db.Where("agent_id = ? AND document_id = ?", agentID, documentID).
		Delete(&models.AgentDocument{}).Error
}

func linkDocument(tx *gorm.DB, organizationID, agentID, documentID string) (bool, error) {
	if _, err := GetDocument(tx, organizationID, documentID); err != nil {
		return false, err
	}

	var count int64
	if err := tx.Model(&models.AgentDocument{}).
		Where("agent_id = ? AND document_id = ?", agentID, documentID).
		Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return true, nil
	}

	return false, tx.Create(&models.AgentDocument{
		ID:         newID(),
		AgentID:    agentID,
		DocumentID: documentID,
	}).Error
}

// linkConnections freezes an alias for each connection at link time. Aliases are unique
// per agent.
func linkConnections(tx *gorm.DB, agent *models.Agent, connectionIDs []string) error {
	ids := dedupe(connectionIDs)
	if len(ids) == 0 {
		return nil
	}

	var conns []models.Connection
	if err := tx.Where("id IN ? AND organization_id = ? AND is_active = ?", ids, agent.OrganizationID, true).
		Find(&conns).Error; err != nil {
		return err
	}
	byID := make(map[string]models.Connection, len(conns))
	for _, c := range conns {
		byID[c.ID] = c
	}

	taken := map[string]bool{}
	for _, id := range ids {
		conn, ok := byID[id]
		if !ok {
			return fmt.Errorf("connection %s: %w", id, apperr.ErrNotFoundOrInactive)
		}
		link := models.AgentConnection{
			ID:           newID(),
			AgentID:      agent.ID,
			ConnectionID: conn.ID,
			ToolAlias:    toolalias.Unique(conn.DisplayName, conn.Provider, taken),
		}
		if err := tx.Create(&link).Error; err != nil {
			return err
		}
	}
	return nil
}

func validateAgent(name, instructions string) error {
	if strings.TrimSpace(name) == "" {
		return apperr.Invalid("name", "agent name is required")
	}
	if len(strings.TrimSpace(instructions)) < MinInstructionsLen {
		return apperr.Invalid("instructions", "must be at least %d characters", MinInstructionsLen)
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
