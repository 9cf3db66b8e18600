// Package docsearch is the retrieval tool every agent gets. It searches only the documents
// linked to its agent at call time.
package docsearch

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/pysugar/agent-nexus/internal/apperr"
	"github.com/pysugar/agent-nexus/internal/db"
	"github.com/pysugar/agent-nexus/internal/rag"
	"github.com/pysugar/agent-nexus/internal/toolalias"
	"github.com/pysugar/agent-nexus/internal/tools"
	"gorm.io/gorm"
)

const (
	Name = toolalias.Reserved

	DefaultLimit = 5
	MaxLimit     = 20

	// overfetch compensates for filtering by linked document after the global search.
	overfetch = 2
)

type Input struct {
	Query string `json:"query" jsonschema:"required,minLength=1,description=What to look for in the knowledge base"`
	Limit *int   `json:"limit,omitempty" jsonschema:"minimum=1,maximum=20,default=5"`
}

type Result struct {
	Content string  `json:"content"`
	Title   string  `json:"title"`
	Source  string  `json:"source"`
	Score   float32 `json:"score"`
}

type Output struct {
	Results      []Result `json:"results"`
	TotalResults int      `json:"totalResults"`
}

type searcher struct {
	agentID  string
	db       *gorm.DB
	embedder rag.Embedder
	index    rag.Index
}

// New builds the search_docs tool bound to agentID.
func New(agentID string, gdb *gorm.DB, embedder rag.Embedder, index rag.Index) (tools.Tool, error) {
	s := &searcher{agentID: agentID, db: gdb, embedder: embedder, index: index}
	return tools.New(tools.Config{
		Name:        Name,
		Description: "Search this agent's uploaded documents and knowledge base",
		Provider:    "documents",
	}, s.search)
}

func (s *searcher) search(ctx context.Context, in Input) (Output, error) {
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return Output{}, apperr.Invalid("query", "search query is required")
	}
	limit := DefaultLimit
	if in.Limit != nil {
		if *in.Limit < 1 || *in.Limit > MaxLimit {
			return Output{}, apperr.Invalid("limit", "must be between 1 and %d", MaxLimit)
		}
		limit = *in.Limit
	}

	// Looked up per call so newly linked documents are searchable without a rebuild.
	docIDs, err := db.LinkedDocumentIDs(s.db, s.agentID)
	if err != nil {
		return Output{}, fmt.Errorf("failed to load linked documents: %w", err)
	}
	if len(docIDs) == 0 {
		log.Printf("⚠️ Agent %s has no linked documents", s.agentID)
		return Output{Results: []Result{}, TotalResults: 0}, nil
	}
	linked := make(map[string]bool, len(docIDs))
	for _, id := range docIDs {
		linked[id] = true
	}

	vector, err := rag.EmbedOne(ctx, s.embedder, query)
	if err != nil {
		return Output{}, fmt.Errorf("search failed: %w", err)
	}
	matches, err := s.index.Query(ctx, vector, overfetch*limit)
	if err != nil {
		return Output{}, fmt.Errorf("search failed: %w", err)
	}

	results := make([]Result, 0, limit)
	for _, m := range matches {
		docID := m.Metadata[rag.MetaDocumentID]
		if !linked[docID] {
			continue
		}
		title := m.Metadata[rag.MetaTitle]
		if title == "" {
			title = "Unknown"
		}
		results = append(results, Result{
			Content: m.Metadata[rag.MetaChunkText],
			Title:   title,
			Source:  docID,
			Score:   m.Score,
		})
		if len(results) == limit {
			break
		}
	}
	log.Printf("🔍 Agent %s search %q: %d raw, %d filtered", s.agentID, query, len(matches), len(results))
	return Output{Results: results, TotalResults: len(results)}, nil
}
