package db

import (
	"log"

	"github.com/pysugar/agent-nexus/internal/db/models"
	"gorm.io/gorm"
)

// RecordToolCall appends a tool call log row. Failures are logged, not returned.
func RecordToolCall(db *gorm.DB, entry *models.ToolCallLog) {
	if entry.ID == "" {
		entry.ID = newID()
	}
	if err := db.Create(entry).Error; err != nil {
		log.Printf("⚠️ Failed to record tool call %s/%s: %v", entry.AgentID, entry.ToolAlias, err)
	}
}

// ListToolCalls returns an agent's most recent tool calls.
func ListToolCalls(db *gorm.DB, agentID string, limit int) ([]models.ToolCallLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var entries []models.ToolCallLog
	err := db.Where("agent_id = ?", agentID).Order("created_at DESC").Limit(limit).Find(&entries).Error
	return entries, err
}
