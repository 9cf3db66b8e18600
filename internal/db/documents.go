package db

import (
	"errors"
	"fmt"
	"time"

	"github.com/pysugar/agent-nexus/internal/apperr"
	"github.com/pysugar/agent-nexus/internal/db/models"
	"gorm.io/gorm"
)

// CreateDocument stores document metadata.
func CreateDocument(db *gorm.DB, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = newID()
	}
	return db.Create(doc).Error
}

// FinishDocument records where a document was stored and how many chunks were indexed.
func FinishDocument(db *gorm.DB, id, filePath string, chunkCount int) error {
	return db.Model(&models.Document{}).
		Where("id = ?", id).
		Updates(map[string]any{"file_path": filePath, "chunk_count": chunkCount, "updated_at": time.Now().UTC()}).Error
}

// GetDocument loads an organization's document.
func GetDocument(db *gorm.DB, organizationID, id string) (*models.Document, error) {
	var doc models.Document
	err := db.Where("id = ? AND organization_id = ?", id, organizationID).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("document %s: %w", id, apperr.ErrNotFoundOrInactive)
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// DeleteDocument removes a document row and its agent links.
func DeleteDocument(db *gorm.DB, id string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&models.AgentDocument{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.Document{}).Error
	})
}

// ListDocuments returns an organization's documents, newest first.
func ListDocuments(db *gorm.DB, organizationID string) ([]models.Document, error) {
	var docs []models.Document
	err := db.Where("organization_id = ?", organizationID).Order("created_at DESC").Find(&docs).Error
	return docs, err
}
