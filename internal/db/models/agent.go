package models

import "time"

// Agent is an organization's configured persona.
type Agent struct {
	ID             string    `gorm:"primaryKey" json:"id"`
	OrganizationID string    `gorm:"index" json:"organization_id"`
	Name           string    `json:"name"`
	Instructions   string    `gorm:"type:text" json:"instructions"`
	IsActive       bool      `gorm:"default:true" json:"is_active"`
	CreatedBy      string    `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// AgentConnection links an agent to a connection. ToolAlias is computed once when the link
// is created and never re-derived, so renaming the connection keeps the agent's tool name.
type AgentConnection struct {
	ID           string    `gorm:"primaryKey" json:"id"`
	AgentID      string    `gorm:"index;uniqueIndex:idx_agent_connection" json:"agent_id"`
	ConnectionID string    `gorm:"index;uniqueIndex:idx_agent_connection" json:"connection_id"`
	ToolAlias    string    `json:"tool_alias"`
	CreatedAt    time.Time `json:"created_at"`
}

// AgentDocument links an agent to a document in its knowledge base.
type AgentDocument struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	AgentID    string    `gorm:"index;uniqueIndex:idx_agent_document" json:"agent_id"`
	DocumentID string    `gorm:"index;uniqueIndex:idx_agent_document" json:"document_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// LinkedConnection is an AgentConnection joined with its Connection.
type LinkedConnection struct {
	ConnectionID string   `json:"connection_id"`
	ToolAlias    string   `json:"tool_alias"`
	DisplayName  string   `json:"display_name"`
	Provider     Provider `json:"provider"`
	AccountEmail string   `json:"account_email,omitempty"`
	IsActive     bool     `json:"is_active"`
}
