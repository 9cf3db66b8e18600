package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/pysugar/agent-nexus/internal/agent"
	"github.com/pysugar/agent-nexus/internal/apperr"
	"github.com/pysugar/agent-nexus/internal/db"
	"github.com/pysugar/agent-nexus/internal/tools"
	"gorm.io/gorm"
)

// fakeOpenAI streams canned completions. Each request is answered by reply, which gets the
// decoded request body and returns the SSE chunks to send.
type fakeOpenAI struct {
	mu       sync.Mutex
	requests []map[string]any
	reply    func(n int, body map[string]any) []string
}

func (f *fakeOpenAI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/chat/completions" {
		http.NotFound(w, r)
		return
	}
	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(raw, &body)

	f.mu.Lock()
	f.requests = append(f.requests, body)
	n := len(f.requests)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "text/event-stream")
	for _, chunk := range f.reply(n, body) {
		fmt.Fprintf(w, "data: %s\n\n", chunk)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func textChunks(id string, parts ...string) []string {
	var out []string
	for _, p := range parts {
		delta, _ := json.Marshal(map[string]any{"role": "assistant", "content": p})
		out = append(out, fmt.Sprintf(`{"id":%q,"object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"delta":%s,"finish_reason":null}]}`, id, delta))
	}
	out = append(out, fmt.Sprintf(`{"id":%q,"object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`, id))
	return out
}

func toolCallChunks(id, callID, name, args string) []string {
	fn, _ := json.Marshal(map[string]any{"name": name, "arguments": args})
	return []string{
		fmt.Sprintf(`{"id":%q,"object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"delta":{"role":"assistant","tool_calls":[{"index":0,"id":%q,"type":"function","function":%s}]},"finish_reason":null}]}`, id, callID, fn),
		fmt.Sprintf(`{"id":%q,"object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`, id),
	}
}

type echoIn struct {
	Text string `json:"text"`
}

type echoOut struct {
	Echo string `json:"echo"`
}

func newTestAgent(t *testing.T) *agent.RuntimeAgent {
	t.Helper()
	echo, err := tools.New(tools.Config{Name: "echo", Description: "Echo the text back", Provider: "documents"},
		func(ctx context.Context, in echoIn) (echoOut, error) {
			if in.Text == "" {
				return echoOut{}, apperr.Invalid("text", "is required")
			}
			return echoOut{Echo: in.Text}, nil
		})
	if err != nil {
		t.Fatalf("tools.New: %v", err)
	}
	return agent.NewRuntimeAgent("agent-1", "org-1", "Helper", "gpt-4o-mini", "Be helpful.", []tools.Tool{echo})
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "llm.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

func collect() (*[]Event, func(Event)) {
	var events []Event
	return &events, func(e Event) { events = append(events, e) }
}

func TestStream_TextOnly(t *testing.T) {
	fake := &fakeOpenAI{reply: func(n int, body map[string]any) []string {
		return textChunks("c1", "Hello", ", world")
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	events, emit := collect()
	c := NewClient("sk-test", srv.URL+"/v1/", nil)
	text, err := c.Stream(context.Background(), newTestAgent(t), []Message{{Role: RoleUser, Content: "hi"}}, emit)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if text != "Hello, world" {
		t.Fatalf("unexpected text %q", text)
	}

	var deltas []string
	for _, e := range *events {
		if e.Type == EventDelta {
			deltas = append(deltas, e.Delta)
		}
	}
	if strings.Join(deltas, "|") != "Hello|, world" {
		t.Fatalf("unexpected deltas %v", deltas)
	}
	if last := (*events)[len(*events)-1]; last.Type != EventDone {
		t.Fatalf("expected done last, got %+v", last)
	}

	req := fake.requests[0]
	msgs := req["messages"].([]any)
	first := msgs[0].(map[string]any)
	if first["role"] != "system" || first["content"] != "Be helpful." {
		t.Fatalf("expected system instructions first, got %v", first)
	}
	toolsSent := req["tools"].([]any)
	fn := toolsSent[0].(map[string]any)["function"].(map[string]any)
	if fn["name"] != "echo" {
		t.Fatalf("unexpected tool definition %v", fn)
	}
}

func TestStream_ExecutesToolCalls(t *testing.T) {
	gdb := newTestDB(t)
	fake := &fakeOpenAI{reply: func(n int, body map[string]any) []string {
		if n == 1 {
			return toolCallChunks("c1", "call_1", "echo", `{"text":"ping"}`)
		}
		return textChunks("c2", "pong")
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	events, emit := collect()
	c := NewClient("sk-test", srv.URL+"/v1/", gdb)
	text, err := c.Stream(context.Background(), newTestAgent(t), []Message{{Role: RoleUser, Content: "say ping"}}, emit)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if text != "pong" || len(fake.requests) != 2 {
		t.Fatalf("text=%q requests=%d", text, len(fake.requests))
	}

	msgs := fake.requests[1]["messages"].([]any)
	toolMsg := msgs[len(msgs)-1].(map[string]any)
	if toolMsg["role"] != "tool" || toolMsg["tool_call_id"] != "call_1" {
		t.Fatalf("expected tool result message, got %v", toolMsg)
	}
	if content, _ := toolMsg["content"].(string); content != `{"echo":"ping"}` {
		t.Fatalf("unexpected tool content %v", toolMsg["content"])
	}

	var toolEvents int
	for _, e := range *events {
		if e.Type == EventTool {
			toolEvents++
			if e.Tool != "echo" || !e.Success {
				t.Fatalf("unexpected tool event %+v", e)
			}
		}
	}
	if toolEvents != 1 {
		t.Fatalf("expected one tool event, got %d", toolEvents)
	}

	logged, err := db.ListToolCalls(gdb, "agent-1", 10)
	if err != nil || len(logged) != 1 || !logged[0].Success || logged[0].ToolAlias != "echo" {
		t.Fatalf("unexpected tool call log %+v (%v)", logged, err)
	}
}

func TestStream_ToolFailureIsFedBack(t *testing.T) {
	fake := &fakeOpenAI{reply: func(n int, body map[string]any) []string {
		if n == 1 {
			return toolCallChunks("c1", "call_1", "echo", `{}`)
		}
		return textChunks("c2", "Sorry")
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := NewClient("sk-test", srv.URL+"/v1/", nil)
	if _, err := c.Stream(context.Background(), newTestAgent(t), []Message{{Role: RoleUser, Content: "x"}}, nil); err != nil {
		t.Fatalf("tool failures must not fail the turn: %v", err)
	}

	msgs := fake.requests[1]["messages"].([]any)
	content := msgs[len(msgs)-1].(map[string]any)["content"].(string)
	var failure tools.Failure
	if err := json.Unmarshal([]byte(content), &failure); err != nil {
		t.Fatalf("tool content is not a failure: %q", content)
	}
	if failure.Success || !strings.Contains(failure.Error, "text") {
		t.Fatalf("unexpected failure %+v", failure)
	}
}

func TestStream_UnknownToolAndRoundLimit(t *testing.T) {
	fake := &fakeOpenAI{reply: func(n int, body map[string]any) []string {
		if _, ok := body["tools"]; !ok {
			return textChunks(fmt.Sprintf("c%d", n), "giving up")
		}
		return toolCallChunks(fmt.Sprintf("c%d", n), fmt.Sprintf("call_%d", n), "missing_tool", `{}`)
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := NewClient("sk-test", srv.URL+"/v1/", nil)
	text, err := c.Stream(context.Background(), newTestAgent(t), []Message{{Role: RoleUser, Content: "loop"}}, nil)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if text != "giving up" {
		t.Fatalf("unexpected text %q", text)
	}
	if len(fake.requests) != MaxToolRounds+1 {
		t.Fatalf("expected %d requests, got %d", MaxToolRounds+1, len(fake.requests))
	}
}

func TestStream_Validation(t *testing.T) {
	c := NewClient("sk-test", "http://127.0.0.1:1/v1/", nil)
	ra := newTestAgent(t)
	if _, err := c.Stream(context.Background(), ra, nil, nil); !apperr.IsValidation(err) {
		t.Fatalf("expected validation error for empty history, got %v", err)
	}
	if _, err := c.Stream(context.Background(), ra, []Message{{Role: "system", Content: "x"}}, nil); !apperr.IsValidation(err) {
		t.Fatalf("expected validation error for bad role, got %v", err)
	}
}

func TestStream_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad model","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	c := NewClient("sk-test", srv.URL+"/v1/", nil)
	if _, err := c.Stream(context.Background(), newTestAgent(t), []Message{{Role: RoleUser, Content: "x"}}, nil); err == nil {
		t.Fatal("expected an error from a failing completion endpoint")
	}
}
