// Package llm runs chat turns for a RuntimeAgent against an OpenAI compatible API,
// dispatching the model's tool calls to the agent's tools.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/pysugar/agent-nexus/internal/agent"
	"github.com/pysugar/agent-nexus/internal/apperr"
	"github.com/pysugar/agent-nexus/internal/db"
	"github.com/pysugar/agent-nexus/internal/db/models"
	"github.com/pysugar/agent-nexus/internal/metrics"
	"github.com/pysugar/agent-nexus/internal/tools"
	"github.com/pysugar/agent-nexus/internal/util"
	"gorm.io/gorm"
)

// MaxToolRounds caps how many times one turn may go back to the model with tool results.
// After the last round the model is asked once more without tools.
const MaxToolRounds = 8

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the conversation history sent by the caller.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// EventType tags a streamed Event.
type EventType string

const (
	EventDelta EventType = "delta"
	EventTool  EventType = "tool"
	EventDone  EventType = "done"
	EventError EventType = "error"
)

// Event is emitted while a turn runs.
type Event struct {
	Type       EventType `json:"type"`
	Delta      string    `json:"delta,omitempty"`
	Tool       string    `json:"tool,omitempty"`
	Success    bool      `json:"success,omitempty"`
	DurationMs int64     `json:"durationMs,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Client streams chat completions.
type Client struct {
	client openai.Client
	db     *gorm.DB
}

// NewClient creates a client for apiKey. baseURL may be empty. When gdb is non-nil every
// executed tool call is recorded in the tool call log.
func NewClient(apiKey, baseURL string, gdb *gorm.DB) *Client {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Client{client: openai.NewClient(opts...), db: gdb}
}

// Stream runs one turn: it sends history to the model, executes requested tools and feeds
// their results back until the model answers in text. Every text delta and tool execution
// is passed to emit. It returns the final assistant text.
func (c *Client) Stream(ctx context.Context, ra *agent.RuntimeAgent, history []Message, emit func(Event)) (string, error) {
	if len(history) == 0 {
		return "", apperr.Invalid("messages", "at least one message is required")
	}
	if emit == nil {
		emit = func(Event) {}
	}

	msgs := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(ra.Instructions)}
	for _, m := range history {
		switch m.Role {
		case RoleUser:
			msgs = append(msgs, openai.UserMessage(m.Content))
		case RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			return "", apperr.Invalid("messages", "unsupported role %q", m.Role)
		}
	}

	toolParams := toolDefinitions(ra.Tools())
	for round := 0; ; round++ {
		params := openai.ChatCompletionNewParams{
			Model:    ra.Model,
			Messages: msgs,
		}
		if round < MaxToolRounds && len(toolParams) > 0 {
			params.Tools = toolParams
		}

		completion, err := c.complete(ctx, params, emit)
		if err != nil {
			metrics.LLMRequests.WithLabelValues("error").Inc()
			return "", fmt.Errorf("chat completion failed: %w", err)
		}
		metrics.LLMRequests.WithLabelValues("success").Inc()
		if len(completion.Choices) == 0 {
			return "", errors.New("chat completion returned no choices")
		}

		message := completion.Choices[0].Message
		if len(message.ToolCalls) == 0 || params.Tools == nil {
			emit(Event{Type: EventDone})
			return message.Content, nil
		}

		msgs = append(msgs, message.ToParam())
		for _, call := range message.ToolCalls {
			content := c.runTool(ctx, ra, call, emit)
			msgs = append(msgs, openai.ToolMessage(content, call.ID))
		}
		log.Printf("🔁 Agent %s tool round %d: %d calls", ra.ID, round+1, len(message.ToolCalls))
	}
}

func (c *Client) complete(ctx context.Context, params openai.ChatCompletionNewParams, emit func(Event)) (*openai.ChatCompletion, error) {
	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			emit(Event{Type: EventDelta, Delta: chunk.Choices[0].Delta.Content})
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	return &acc.ChatCompletion, nil
}

func (c *Client) runTool(ctx context.Context, ra *agent.RuntimeAgent, call openai.ChatCompletionMessageToolCall, emit func(Event)) string {
	name := call.Function.Name
	args := json.RawMessage(call.Function.Arguments)

	t, ok := ra.Tool(name)
	var res tools.Result
	if !ok {
		err := fmt.Errorf("tool %s: %w", name, apperr.ErrNotFound)
		content, _ := json.Marshal(tools.FailureFrom("", err))
		res = tools.Result{Content: string(content), Err: err}
		log.Printf("⚠️ Model requested unknown tool %s on agent %s", name, ra.ID)
	} else {
		res = tools.Execute(ctx, t, args)
	}

	ev := Event{Type: EventTool, Tool: name, Success: res.Err == nil, DurationMs: res.Duration.Milliseconds()}
	if res.Err != nil {
		ev.Error = res.Err.Error()
	}
	emit(ev)

	if c.db != nil {
		entry := &models.ToolCallLog{
			AgentID:    ra.ID,
			ToolAlias:  name,
			Success:    res.Err == nil,
			DurationMs: res.Duration.Milliseconds(),
			Arguments:  util.TruncateLog(string(args), util.DefaultLogMaxLen),
			CreatedAt:  time.Now().UnixMilli(),
		}
		if res.Err != nil {
			entry.Error = res.Err.Error()
		}
		db.RecordToolCall(c.db, entry)
	}
	return res.Content
}

func toolDefinitions(ts []tools.Tool) []openai.ChatCompletionToolParam {
	params := make([]openai.ChatCompletionToolParam, 0, len(ts))
	for _, t := range ts {
		params = append(params, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name(),
				Description: openai.String(strings.TrimSpace(t.Description())),
				Parameters:  openai.FunctionParameters(t.InputSchema()),
			},
		})
	}
	return params
}
