package rag

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pysugar/agent-nexus/internal/apperr"
	"github.com/pysugar/agent-nexus/internal/db"
	"github.com/pysugar/agent-nexus/internal/db/models"
	"github.com/pysugar/agent-nexus/internal/logging"
	"gorm.io/gorm"
)

// MaxUploadSize is the largest document accepted for ingestion.
const MaxUploadSize = 10 << 20

// Upload is a document submitted for ingestion.
type Upload struct {
	OrganizationID string
	UserID         string
	Title          string
	Filename       string
	ContentType    string
	Data           []byte
}

// Ingester extracts, stores, chunks and embeds uploaded documents.
type Ingester struct {
	db         *gorm.DB
	embedder   Embedder
	index      Index
	storageDir string
}

// NewIngester creates an ingester writing extracted text under storageDir.
func NewIngester(db *gorm.DB, embedder Embedder, index Index, storageDir string) *Ingester {
	return &Ingester{db: db, embedder: embedder, index: index, storageDir: storageDir}
}

// Ingest indexes up and returns the stored document. A failed ingestion leaves no
// document row and no vectors behind.
func (in *Ingester) Ingest(ctx context.Context, up Upload) (*models.Document, error) {
	if !logging.ValidTenantID(up.OrganizationID) {
		return nil, apperr.Invalid("organizationId", "invalid organization id %q", up.OrganizationID)
	}
	title := strings.TrimSpace(up.Title)
	if title == "" {
		return nil, apperr.Invalid("title", "is required")
	}
	if len(up.Data) == 0 {
		return nil, apperr.Invalid("document", "file is empty")
	}
	if len(up.Data) > MaxUploadSize {
		return nil, apperr.Invalid("document", "file exceeds %d MB", MaxUploadSize>>20)
	}
	contentType := NormalizeContentType(up.ContentType, up.Filename)
	if contentType == "" {
		return nil, apperr.Invalid("document", "unsupported file type %q (text, markdown or PDF)", up.ContentType)
	}

	log.Printf("🎯 Document processing started: %q (%s, %d bytes, org %s)", title, contentType, len(up.Data), up.OrganizationID)
	text, err := ExtractText(contentType, up.Data)
	if err != nil {
		return nil, err
	}
	chunks := Chunk(text, ChunkSize, ChunkOverlap)
	if len(chunks) == 0 {
		return nil, apperr.Invalid("document", "no text content")
	}

	doc := &models.Document{
		OrganizationID: up.OrganizationID,
		Title:          title,
		ContentType:    contentType,
		FileSize:       int64(len(up.Data)),
		CreatedBy:      up.UserID,
	}
	if err := db.CreateDocument(in.db, doc); err != nil {
		return nil, fmt.Errorf("failed to save document: %w", err)
	}

	relPath, err := in.indexDocument(ctx, doc, text, chunks)
	if err != nil {
		in.rollback(doc)
		return nil, err
	}
	if err := db.FinishDocument(in.db, doc.ID, relPath, len(chunks)); err != nil {
		in.rollback(doc)
		return nil, fmt.Errorf("failed to update document: %w", err)
	}
	doc.FilePath, doc.ChunkCount = relPath, len(chunks)
	log.Printf("✅ Indexed document %s (%q): %d chunks", doc.ID, title, len(chunks))
	return doc, nil
}

func (in *Ingester) indexDocument(ctx context.Context, doc *models.Document, text string, chunks []string) (string, error) {
	relPath := textPath(doc)
	absPath := filepath.Join(in.storageDir, relPath)
	if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create storage directory: %w", err)
	}
	if err := os.WriteFile(absPath, []byte(text), 0644); err != nil {
		return "", fmt.Errorf("failed to store document text: %w", err)
	}

	inputs := make([]string, len(chunks))
	for i, chunk := range chunks {
		inputs[i] = EmbeddingText(doc.Title, chunk)
	}
	vectors, err := in.embedder.Embed(ctx, inputs)
	if err != nil {
		return "", err
	}
	if len(vectors) != len(chunks) {
		return "", fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	for i, vec := range vectors {
		meta := map[string]string{
			MetaDocumentID: doc.ID,
			MetaTitle:      doc.Title,
			MetaChunkIndex: strconv.Itoa(i),
			MetaChunkText:  chunks[i],
		}
		if err := in.index.Upsert(ctx, ChunkID(doc.ID, i), vec, meta); err != nil {
			return "", err
		}
	}
	return filepath.ToSlash(relPath), nil
}

func textPath(doc *models.Document) string {
	return filepath.Join("documents", doc.OrganizationID, doc.ID+".txt")
}

func (in *Ingester) rollback(doc *models.Document) {
	documentID := doc.ID
	if err := os.Remove(filepath.Join(in.storageDir, textPath(doc))); err != nil && !os.IsNotExist(err) {
		log.Printf("⚠️ Failed to remove stored text of %s: %v", documentID, err)
	}
	if err := in.index.DeleteDocument(context.Background(), documentID); err != nil {
		log.Printf("⚠️ Failed to remove vectors of %s: %v", documentID, err)
	}
	if err := db.DeleteDocument(in.db, documentID); err != nil {
		log.Printf("⚠️ Failed to remove document %s: %v", documentID, err)
	}
}
