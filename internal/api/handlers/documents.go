package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/pysugar/agent-nexus/internal/apperr"
	"github.com/pysugar/agent-nexus/internal/db"
	"github.com/pysugar/agent-nexus/internal/db/models"
	"github.com/pysugar/agent-nexus/internal/logging"
	"github.com/pysugar/agent-nexus/internal/rag"
	"gorm.io/gorm"
)

// DocumentsHandler lists the organization's documents.
func DocumentsHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, err := db.ListDocuments(database, tenantOf(r).OrganizationID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if docs == nil {
			docs = []models.Document{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
	}
}

// UploadDocumentHandler ingests a multipart upload with a "document" file and a "title" field.
func UploadDocumentHandler(ingester DocumentIngester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Leave room for the multipart envelope around the file itself.
		r.Body = http.MaxBytesReader(w, r.Body, rag.MaxUploadSize+1<<20)
		if err := r.ParseMultipartForm(rag.MaxUploadSize); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, r, apperr.Invalid("document", "file exceeds %d MB", rag.MaxUploadSize>>20))
				return
			}
			writeError(w, r, apperr.Invalid("document", "invalid multipart form: %v", err))
			return
		}
		file, header, err := r.FormFile("document")
		if err != nil {
			writeError(w, r, apperr.Invalid("document", "file is required"))
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			writeError(w, r, err)
			return
		}

		t := tenantOf(r)
		title := r.FormValue("title")
		if title == "" {
			title = header.Filename
		}
		doc, err := ingester.Ingest(r.Context(), rag.Upload{
			OrganizationID: t.OrganizationID,
			UserID:         t.UserID,
			Title:          title,
			Filename:       header.Filename,
			ContentType:    header.Header.Get("Content-Type"),
			Data:           data,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		logging.Printf(r.Context(), "📄 Document %s ingested: %d chunks", doc.ID, doc.ChunkCount)
		writeJSON(w, http.StatusCreated, doc)
	}
}
