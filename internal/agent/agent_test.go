package agent

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/pysugar/agent-nexus/internal/apperr"
	"github.com/pysugar/agent-nexus/internal/db"
	"github.com/pysugar/agent-nexus/internal/db/models"
	"github.com/pysugar/agent-nexus/internal/rag"
	"github.com/pysugar/agent-nexus/internal/tools"
	"gorm.io/gorm"
)

type fakeTokens struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (f *fakeTokens) EnsureValidToken(ctx context.Context, connectionID string, provider models.Provider) (*models.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, connectionID)
	if err := f.fail[connectionID]; err != nil {
		return nil, err
	}
	return &models.Connection{ID: connectionID, Provider: provider, AccessToken: "at-" + connectionID, IsActive: true}, nil
}

type nopEmbedder struct{}

func (nopEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)), nil
}

type nopIndex struct{}

func (nopIndex) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error {
	return nil
}
func (nopIndex) Query(ctx context.Context, vector []float32, topK int) ([]rag.Match, error) {
	return nil, nil
}
func (nopIndex) DeleteDocument(ctx context.Context, documentID string) error { return nil }
func (nopIndex) Count() int                                                 { return 0 }

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "agent.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

func seedConnection(t *testing.T, gdb *gorm.DB, name string, provider models.Provider) *models.Connection {
	t.Helper()
	conn := &models.Connection{OrganizationID: "org-1", Provider: provider, DisplayName: name, AccessToken: "at", RefreshToken: "rt"}
	if err := db.CreateConnection(gdb, conn); err != nil {
		t.Fatalf("create connection: %v", err)
	}
	return conn
}

func seedAgent(t *testing.T, gdb *gorm.DB, connectionIDs ...string) *models.Agent {
	t.Helper()
	agent := &models.Agent{OrganizationID: "org-1", Name: "Front Desk", Instructions: "You book meetings for visitors."}
	if err := db.CreateAgent(gdb, agent, connectionIDs, nil); err != nil {
		t.Fatalf("create agent: %v", err)
	}
	return agent
}

func newAssembler(gdb *gorm.DB, tokens TokenSource) *Assembler {
	return NewAssembler(gdb, tokens, nopEmbedder{}, nopIndex{}, Options{})
}

func TestBuild_DocumentsOnlyAgent(t *testing.T) {
	gdb := newTestDB(t)
	stored := seedAgent(t, gdb)

	ra, err := newAssembler(gdb, &fakeTokens{}).Build(context.Background(), stored.ID)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := ra.ToolNames(); !reflect.DeepEqual(got, []string{"search_docs"}) {
		t.Fatalf("expected only search_docs, got %v", got)
	}
	if !strings.HasPrefix(ra.Instructions, stored.Instructions) {
		t.Fatalf("stored instructions must lead, got %q", ra.Instructions)
	}
	if !strings.Contains(ra.Instructions, GreetingSentinel) {
		t.Fatalf("greeting fragment missing from %q", ra.Instructions)
	}
	if ra.Model != "gpt-4o-mini" {
		t.Fatalf("unexpected default model %q", ra.Model)
	}
}

func TestBuild_ProviderTools(t *testing.T) {
	gdb := newTestDB(t)
	cal := seedConnection(t, gdb, "CEO Calendar", models.ProviderGoogleCalendar)
	hub := seedConnection(t, gdb, "Sales CRM", models.ProviderHubSpot)

	// Providers without a tool factory can only appear through rows written by older
	// versions, so insert one directly.
	legacy := &models.Connection{ID: "conn-legacy", OrganizationID: "org-1", Provider: "salesforce", DisplayName: "Old Pipeline", IsActive: true}
	if err := gdb.Create(legacy).Error; err != nil {
		t.Fatalf("insert legacy connection: %v", err)
	}
	stored := seedAgent(t, gdb, cal.ID, legacy.ID, hub.ID)

	tokens := &fakeTokens{}
	ra, err := newAssembler(gdb, tokens).Build(context.Background(), stored.ID)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := ra.ToolNames(); !reflect.DeepEqual(got, []string{"search_docs", "ceo_calendar", "sales_crm"}) {
		t.Fatalf("unexpected tools %v", got)
	}
	if len(tokens.calls) != 0 {
		t.Fatalf("tokens are checked per call, not at build: %v", tokens.calls)
	}

	calTool, ok := ra.Tool("ceo_calendar")
	if !ok || calTool.Provider() != string(models.ProviderGoogleCalendar) {
		t.Fatalf("calendar tool missing or mislabelled: %v", calTool)
	}
	if !strings.Contains(calTool.Description(), "CEO Calendar") {
		t.Fatalf("description should name the connection, got %q", calTool.Description())
	}
	crmTool, _ := ra.Tool("sales_crm")
	if crmTool.Provider() != string(models.ProviderHubSpot) {
		t.Fatalf("crm tool provider %q", crmTool.Provider())
	}
}

func TestBuild_SkipsDisconnectedConnection(t *testing.T) {
	gdb := newTestDB(t)
	cal := seedConnection(t, gdb, "CEO Calendar", models.ProviderGoogleCalendar)
	stored := seedAgent(t, gdb, cal.ID)
	if _, err := db.DisconnectConnection(gdb, "org-1", cal.ID); err != nil {
		t.Fatalf("disconnect: %v", err)
	}

	tokens := &fakeTokens{}
	ra, err := newAssembler(gdb, tokens).Build(context.Background(), stored.ID)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := ra.ToolNames(); !reflect.DeepEqual(got, []string{"search_docs"}) {
		t.Fatalf("disconnected tool should be omitted, got %v", got)
	}
	if len(tokens.calls) != 0 {
		t.Fatalf("no token check expected, got %v", tokens.calls)
	}
}

func TestBuild_TokenFailureKeepsTool(t *testing.T) {
	gdb := newTestDB(t)
	cal := seedConnection(t, gdb, "CEO Calendar", models.ProviderGoogleCalendar)
	hub := seedConnection(t, gdb, "Sales CRM", models.ProviderHubSpot)
	stored := seedAgent(t, gdb, cal.ID, hub.ID)

	tokens := &fakeTokens{fail: map[string]error{cal.ID: apperr.ErrReauthorizationRequired}}
	ra, err := newAssembler(gdb, tokens).Build(context.Background(), stored.ID)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := ra.ToolNames(); !reflect.DeepEqual(got, []string{"search_docs", "ceo_calendar", "sales_crm"}) {
		t.Fatalf("unexpected tools %v", got)
	}

	calTool, _ := ra.Tool("ceo_calendar")
	res := tools.Execute(context.Background(), calTool, json.RawMessage(`{"action":"list_events"}`))
	var failure tools.Failure
	if err := json.Unmarshal([]byte(res.Content), &failure); err != nil {
		t.Fatalf("decode failure: %v (%s)", err, res.Content)
	}
	if failure.Success || !failure.ReconnectRequired || failure.Operation != "list_events" {
		t.Fatalf("expected reconnect failure, got %+v", failure)
	}
}

func TestCache_TransientRefreshFailureDoesNotStick(t *testing.T) {
	gdb := newTestDB(t)
	cal := seedConnection(t, gdb, "CEO Calendar", models.ProviderGoogleCalendar)
	stored := seedAgent(t, gdb, cal.ID)

	tokens := &fakeTokens{fail: map[string]error{
		cal.ID: apperr.ProviderFailed(string(models.ProviderGoogleCalendar), "refresh_token", context.DeadlineExceeded),
	}}
	cache := NewCache(newAssembler(gdb, tokens))

	ra, err := cache.Get(context.Background(), stored.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	calTool, ok := ra.Tool("ceo_calendar")
	if !ok {
		t.Fatalf("calendar tool missing after refresh failure: %v", ra.ToolNames())
	}
	res := tools.Execute(context.Background(), calTool, json.RawMessage(`{"action":"list_events"}`))
	if res.Err == nil || !strings.Contains(res.Content, `"success":false`) {
		t.Fatalf("expected failure content, got %s", res.Content)
	}

	tokens.mu.Lock()
	tokens.fail = nil
	tokens.mu.Unlock()
	again, err := cache.Get(context.Background(), stored.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, ok := again.Tool("ceo_calendar"); !ok || again != ra {
		t.Fatalf("expected the cached agent with its calendar tool, got %v", again.ToolNames())
	}
}

func TestBuild_MissingOrInactiveAgent(t *testing.T) {
	gdb := newTestDB(t)
	a := newAssembler(gdb, &fakeTokens{})

	if _, err := a.Build(context.Background(), "nope"); !errors.Is(err, apperr.ErrNotFoundOrInactive) {
		t.Fatalf("expected ErrNotFoundOrInactive, got %v", err)
	}

	stored := seedAgent(t, gdb)
	if err := db.DeleteAgent(gdb, "org-1", stored.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := a.Build(context.Background(), stored.ID); !errors.Is(err, apperr.ErrNotFoundOrInactive) {
		t.Fatalf("expected ErrNotFoundOrInactive for deleted agent, got %v", err)
	}
}

func TestBuild_ModelFromOptions(t *testing.T) {
	gdb := newTestDB(t)
	stored := seedAgent(t, gdb)
	a := NewAssembler(gdb, &fakeTokens{}, nopEmbedder{}, nopIndex{}, Options{Model: "gpt-4.1"})
	ra, err := a.Build(context.Background(), stored.ID)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if ra.Model != "gpt-4.1" {
		t.Fatalf("unexpected model %q", ra.Model)
	}
}

type countingBuilder struct {
	builds atomic.Int32
	err    error
}

func (b *countingBuilder) Build(ctx context.Context, agentID string) (*RuntimeAgent, error) {
	b.builds.Add(1)
	if b.err != nil {
		return nil, b.err
	}
	return NewRuntimeAgent(agentID, "org-1", "Agent", "m", "i", nil), nil
}

func TestCache_HitAndInvalidate(t *testing.T) {
	b := &countingBuilder{}
	c := NewCache(b)
	ctx := context.Background()

	first, err := c.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	second, _ := c.Get(ctx, "a1")
	if first != second {
		t.Fatal("expected the cached instance on the second Get")
	}
	if b.builds.Load() != 1 || c.Len() != 1 {
		t.Fatalf("builds=%d len=%d", b.builds.Load(), c.Len())
	}

	c.Invalidate("a1", "unknown")
	if c.Len() != 0 {
		t.Fatalf("expected empty cache, got %d", c.Len())
	}
	third, _ := c.Get(ctx, "a1")
	if third == first || b.builds.Load() != 2 {
		t.Fatalf("expected a rebuild after invalidation (builds=%d)", b.builds.Load())
	}
}

func TestCache_ErrorsAreNotCached(t *testing.T) {
	b := &countingBuilder{err: apperr.ErrNotFoundOrInactive}
	c := NewCache(b)

	for i := 0; i < 2; i++ {
		if _, err := c.Get(context.Background(), "a1"); !errors.Is(err, apperr.ErrNotFoundOrInactive) {
			t.Fatalf("expected build error, got %v", err)
		}
	}
	if b.builds.Load() != 2 || c.Len() != 0 {
		t.Fatalf("builds=%d len=%d", b.builds.Load(), c.Len())
	}
}

func TestCache_ConcurrentGet(t *testing.T) {
	c := NewCache(&countingBuilder{})
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := c.Get(context.Background(), []string{"a1", "a2"}[i%2]); err != nil {
				t.Errorf("Get: %v", err)
			}
			if i%4 == 0 {
				c.Invalidate("a1")
			}
		}(i)
	}
	wg.Wait()
	if c.Len() > 2 {
		t.Fatalf("unexpected cache size %d", c.Len())
	}
}
