package rag

import (
	"bytes"
	"log"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/pysugar/agent-nexus/internal/apperr"
)

const (
	ContentTypeText     = "text/plain"
	ContentTypeMarkdown = "text/markdown"
	ContentTypePDF      = "application/pdf"
)

// NormalizeContentType resolves the upload's declared type, falling back to the file
// extension. Unsupported types yield "".
func NormalizeContentType(declared, filename string) string {
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		mediaType = ""
	}
	switch mediaType {
	case ContentTypeText, ContentTypeMarkdown, "text/x-markdown", ContentTypePDF:
		if mediaType == "text/x-markdown" {
			return ContentTypeMarkdown
		}
		return mediaType
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".text":
		return ContentTypeText
	case ".md", ".markdown":
		return ContentTypeMarkdown
	case ".pdf":
		return ContentTypePDF
	}
	return ""
}

// ExtractText returns the plain text of an uploaded document.
func ExtractText(contentType string, data []byte) (string, error) {
	switch contentType {
	case ContentTypeText, ContentTypeMarkdown:
		if !utf8.Valid(data) {
			return "", apperr.Invalid("document", "text files must be UTF-8")
		}
		return string(data), nil
	case ContentTypePDF:
		return extractPDF(data)
	}
	return "", apperr.Invalid("document", "unsupported content type %q", contentType)
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", apperr.Invalid("document", "unreadable PDF: %v", err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			log.Printf("⚠️ PDF page %d extraction failed: %v", i, err)
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", apperr.Invalid("document", "PDF has no extractable text")
	}
	return text, nil
}
