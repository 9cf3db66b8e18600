package models

// ToolCallLog records one executed tool call for an agent.
type ToolCallLog struct {
	ID         string `gorm:"primaryKey" json:"id"`
	AgentID    string `gorm:"index" json:"agent_id"`
	ToolAlias  string `gorm:"index" json:"tool_alias"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Arguments  string `gorm:"type:text" json:"arguments,omitempty"`
	CreatedAt  int64  `gorm:"index" json:"created_at"` // unix millis
}
