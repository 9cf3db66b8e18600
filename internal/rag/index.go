package rag

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"
)

// Metadata keys stored with every chunk.
const (
	MetaDocumentID = "documentId"
	MetaTitle      = "title"
	MetaChunkIndex = "chunkIndex"
	MetaChunkText  = "chunkText"
)

// Match is one similarity search hit.
type Match struct {
	ID       string
	Score    float32
	Metadata map[string]string
}

// Index is the global vector index shared by all organizations.
type Index interface {
	Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error
	// Query returns up to topK matches ranked by cosine similarity.
	Query(ctx context.Context, vector []float32, topK int) ([]Match, error)
	DeleteDocument(ctx context.Context, documentID string) error
	Count() int
}

// ChunkID is the vector id of a document chunk.
func ChunkID(documentID string, chunkIndex int) string {
	return documentID + ":" + strconv.Itoa(chunkIndex)
}

// ChromemIndex stores vectors in chromem-go, in memory or persisted to a directory.
type ChromemIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// IndexConfig configures the chromem index.
type IndexConfig struct {
	// PersistPath is a directory; empty keeps vectors in memory only.
	PersistPath string
	Compress    bool
	Collection  string
}

// NewChromemIndex opens (or creates) the collection described by cfg.
func NewChromemIndex(cfg IndexConfig) (*ChromemIndex, error) {
	var (
		db  *chromem.DB
		err error
	)
	if cfg.PersistPath != "" {
		if err := os.MkdirAll(cfg.PersistPath, 0755); err != nil {
			return nil, fmt.Errorf("failed to create vector directory: %w", err)
		}
		db, err = chromem.NewPersistentDB(cfg.PersistPath, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to open vector database %q: %w", cfg.PersistPath, err)
		}
		log.Printf("📦 Opened vector database at %s", cfg.PersistPath)
	} else {
		db = chromem.NewDB()
		log.Println("📦 Created in-memory vector database (no persistence)")
	}

	name := cfg.Collection
	if name == "" {
		name = "document_embeddings"
	}
	col, err := db.GetOrCreateCollection(name, nil, precomputed)
	if err != nil {
		return nil, fmt.Errorf("failed to get/create collection %q: %w", name, err)
	}
	return &ChromemIndex{db: db, collection: col}, nil
}

// precomputed is the collection's embedding func. Vectors always arrive already embedded.
func precomputed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("vectors must be embedded before they reach the index")
}

func (x *ChromemIndex) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error {
	doc := chromem.Document{
		ID:        id,
		Metadata:  metadata,
		Embedding: vector,
		Content:   metadata[MetaChunkText],
	}
	if err := x.collection.AddDocuments(ctx, []chromem.Document{doc}, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to upsert %s: %w", id, err)
	}
	return nil
}

func (x *ChromemIndex) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	// chromem rejects nResults larger than the collection.
	topK = min(topK, x.collection.Count())
	if topK <= 0 {
		return nil, nil
	}
	results, err := x.collection.QueryEmbedding(ctx, vector, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	out := make([]Match, 0, len(results))
	for _, r := range results {
		out = append(out, Match{ID: r.ID, Score: r.Similarity, Metadata: r.Metadata})
	}
	return out, nil
}

func (x *ChromemIndex) DeleteDocument(ctx context.Context, documentID string) error {
	if err := x.collection.Delete(ctx, map[string]string{MetaDocumentID: documentID}, nil); err != nil {
		return fmt.Errorf("failed to delete vectors of %s: %w", documentID, err)
	}
	return nil
}

func (x *ChromemIndex) Count() int {
	return x.collection.Count()
}
