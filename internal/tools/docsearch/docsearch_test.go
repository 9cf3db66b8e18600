package docsearch

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/pysugar/agent-nexus/internal/apperr"
	"github.com/pysugar/agent-nexus/internal/db"
	"github.com/pysugar/agent-nexus/internal/db/models"
	"github.com/pysugar/agent-nexus/internal/rag"
	"gorm.io/gorm"
)

type countingEmbedder struct{ calls int }

func (e *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

// fixedIndex returns its matches in order, truncated to topK.
type fixedIndex struct {
	matches []rag.Match
	topK    int
}

func (x *fixedIndex) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error {
	return nil
}

func (x *fixedIndex) Query(ctx context.Context, vector []float32, topK int) ([]rag.Match, error) {
	x.topK = topK
	return x.matches[:min(topK, len(x.matches))], nil
}

func (x *fixedIndex) DeleteDocument(ctx context.Context, documentID string) error { return nil }
func (x *fixedIndex) Count() int                                                 { return len(x.matches) }

func match(docID string, score float32) rag.Match {
	return rag.Match{
		ID:    docID + ":0",
		Score: score,
		Metadata: map[string]string{
			rag.MetaDocumentID: docID,
			rag.MetaTitle:      "Title " + docID,
			rag.MetaChunkText:  "chunk of " + docID,
		},
	}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "docsearch.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

func seedAgent(t *testing.T, gdb *gorm.DB, docIDs ...string) *models.Agent {
	t.Helper()
	for _, id := range docIDs {
		if err := db.CreateDocument(gdb, &models.Document{ID: id, OrganizationID: "org-1", Title: "Title " + id}); err != nil {
			t.Fatalf("create document: %v", err)
		}
	}
	agent := &models.Agent{OrganizationID: "org-1", Name: "Support", Instructions: "Answer support questions."}
	if err := db.CreateAgent(gdb, agent, nil, nil); err != nil {
		t.Fatalf("create agent: %v", err)
	}
	return agent
}

func search(t *testing.T, gdb *gorm.DB, agentID string, e rag.Embedder, idx rag.Index, args string) (Output, error) {
	t.Helper()
	tool, err := New(agentID, gdb, e, idx)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := tool.Call(context.Background(), json.RawMessage(args))
	if err != nil {
		return Output{}, err
	}
	return out.(Output), nil
}

func TestSearch_NoLinkedDocuments(t *testing.T) {
	gdb := newTestDB(t)
	agent := seedAgent(t, gdb)
	e := &countingEmbedder{}

	out, err := search(t, gdb, agent.ID, e, &fixedIndex{matches: []rag.Match{match("x", 0.9)}}, `{"query":"refund policy"}`)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if out.TotalResults != 0 || out.Results == nil || len(out.Results) != 0 {
		t.Fatalf("expected empty result set, got %+v", out)
	}
	if e.calls != 0 {
		t.Fatalf("expected no embedding call, got %d", e.calls)
	}

	data, _ := json.Marshal(out)
	if string(data) != `{"results":[],"totalResults":0}` {
		t.Fatalf("unexpected json %s", data)
	}
}

func TestSearch_FiltersToLinkedDocuments(t *testing.T) {
	gdb := newTestDB(t)
	agent := seedAgent(t, gdb, "doc-a", "doc-b")
	if _, err := db.LinkDocument(gdb, "org-1", agent.ID, "doc-a"); err != nil {
		t.Fatalf("link: %v", err)
	}

	idx := &fixedIndex{matches: []rag.Match{
		match("doc-b", 0.99), match("doc-a", 0.95), match("doc-z", 0.9), match("doc-a", 0.8), match("doc-a", 0.7),
	}}
	out, err := search(t, gdb, agent.ID, &countingEmbedder{}, idx, `{"query":"pricing","limit":2}`)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if idx.topK != 4 {
		t.Fatalf("expected 2x over-fetch (4), got %d", idx.topK)
	}
	if out.TotalResults != 2 || len(out.Results) != 2 {
		t.Fatalf("expected 2 results, got %+v", out)
	}
	for _, r := range out.Results {
		if r.Source != "doc-a" {
			t.Fatalf("result outside linked set: %+v", r)
		}
	}
	if out.Results[0].Score != 0.95 || out.Results[0].Content != "chunk of doc-a" || out.Results[0].Title != "Title doc-a" {
		t.Fatalf("unexpected first result %+v", out.Results[0])
	}
}

func TestSearch_SeesNewlyLinkedDocuments(t *testing.T) {
	gdb := newTestDB(t)
	agent := seedAgent(t, gdb, "doc-a")
	idx := &fixedIndex{matches: []rag.Match{match("doc-a", 0.5)}}

	tool, err := New(agent.ID, gdb, &countingEmbedder{}, idx)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	before, _ := tool.Call(context.Background(), json.RawMessage(`{"query":"q"}`))
	if before.(Output).TotalResults != 0 {
		t.Fatalf("expected no results before linking")
	}

	if _, err := db.LinkDocument(gdb, "org-1", agent.ID, "doc-a"); err != nil {
		t.Fatalf("link: %v", err)
	}
	after, _ := tool.Call(context.Background(), json.RawMessage(`{"query":"q"}`))
	if after.(Output).TotalResults != 1 {
		t.Fatalf("expected linked document to be searchable without rebuilding the tool")
	}
}

func TestSearch_Validation(t *testing.T) {
	gdb := newTestDB(t)
	agent := seedAgent(t, gdb)
	for _, args := range []string{`{"query":""}`, `{"query":"  "}`, `{"query":"x","limit":0}`, `{"query":"x","limit":21}`} {
		if _, err := search(t, gdb, agent.ID, &countingEmbedder{}, &fixedIndex{}, args); !apperr.IsValidation(err) {
			t.Errorf("%s: expected validation error, got %v", args, err)
		}
	}
}

func TestToolName(t *testing.T) {
	tool, err := New("agent-1", nil, &countingEmbedder{}, &fixedIndex{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if tool.Name() != "search_docs" {
		t.Fatalf("unexpected name %q", tool.Name())
	}
}
