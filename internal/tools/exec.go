package tools

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/pysugar/agent-nexus/internal/metrics"
	"github.com/pysugar/agent-nexus/internal/util"
)

// Result is the outcome of one executed tool call.
type Result struct {
	// Content is the JSON handed back to the model: the tool output or a Failure.
	Content  string
	Err      error
	Duration time.Duration
}

// Execute runs t and always produces model-facing content. Tool errors never escape as a
// turn failure; they are encoded as Failure content instead.
func Execute(ctx context.Context, t Tool, args json.RawMessage) Result {
	started := time.Now()
	out, err := t.Call(ctx, args)
	metrics.ObserveTool(t.Provider(), started, err)

	var payload any = out
	if err != nil {
		log.Printf("⚠️ Tool %s failed: %v (args: %s)", t.Name(), err, util.TruncateLog(string(args), 256))
		payload = FailureFrom(operationOf(args), err)
	}

	content, mErr := json.Marshal(payload)
	if mErr != nil {
		if err == nil {
			err = mErr
		}
		content, _ = json.Marshal(FailureFrom("", mErr))
	}
	return Result{Content: string(content), Err: err, Duration: time.Since(started)}
}

// operationOf extracts the "action" argument the provider tools dispatch on.
func operationOf(args json.RawMessage) string {
	var probe struct {
		Action string `json:"action"`
	}
	if json.Unmarshal(args, &probe) != nil {
		return ""
	}
	return probe.Action
}
