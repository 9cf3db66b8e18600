package models

import "time"

// Document is file metadata. Chunk embeddings live in the vector index, keyed by
// document id and chunk index.
type Document struct {
	ID             string    `gorm:"primaryKey" json:"id"`
	OrganizationID string    `gorm:"index" json:"organization_id"`
	Title          string    `json:"title"`
	FilePath       string    `json:"file_path"`
	ContentType    string    `json:"content_type"`
	FileSize       int64     `json:"file_size"`
	ChunkCount     int       `json:"chunk_count"`
	CreatedBy      string    `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
