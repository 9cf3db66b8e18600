// Package agent assembles runtime agents from stored configuration and caches them.
package agent

import (
	"time"

	"github.com/pysugar/agent-nexus/internal/tools"
)

// GreetingSentinel is the user message that asks an agent to introduce itself.
const GreetingSentinel = "__INITIAL_GREETING__"

const greetingInstructions = `IMPORTANT: If you receive the message "` + GreetingSentinel + `", respond with a personalized greeting that introduces yourself based on your role and capabilities. Don't mention the special message, just provide a natural greeting that explains what you can help with.`

// RuntimeAgent is an assembled agent: instructions, model and the tools it may call.
// It is immutable once built.
type RuntimeAgent struct {
	ID             string
	OrganizationID string
	Name           string
	Model          string
	Instructions   string
	BuiltAt        time.Time

	tools  []tools.Tool
	byName map[string]tools.Tool
}

// NewRuntimeAgent assembles a RuntimeAgent from already built tools.
func NewRuntimeAgent(id, org, name, model, instructions string, ts []tools.Tool) *RuntimeAgent {
	ra := &RuntimeAgent{
		ID:             id,
		OrganizationID: org,
		Name:           name,
		Model:          model,
		Instructions:   instructions,
		BuiltAt:        time.Now().UTC(),
		tools:          ts,
		byName:         make(map[string]tools.Tool, len(ts)),
	}
	for _, t := range ts {
		ra.byName[t.Name()] = t
	}
	return ra
}

// Tools returns the agent's tools in assembly order, search_docs first.
func (a *RuntimeAgent) Tools() []tools.Tool {
	out := make([]tools.Tool, len(a.tools))
	copy(out, a.tools)
	return out
}

// Tool looks up a tool by its alias.
func (a *RuntimeAgent) Tool(name string) (tools.Tool, bool) {
	t, ok := a.byName[name]
	return t, ok
}

// ToolNames lists the aliases in assembly order.
func (a *RuntimeAgent) ToolNames() []string {
	names := make([]string, len(a.tools))
	for i, t := range a.tools {
		names[i] = t.Name()
	}
	return names
}

func withGreeting(instructions string) string {
	return instructions + "\n\n" + greetingInstructions
}
