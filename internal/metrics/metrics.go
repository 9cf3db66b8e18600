// Package metrics holds the Prometheus collectors for agent assembly, token refresh and
// tool execution.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registry every collector below is registered on.
var Registry = prometheus.NewRegistry()

var (
	ToolCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agentnexus_tool_calls_total",
		Help: "Total tool calls by provider and outcome",
	}, []string{"provider", "outcome"})

	ToolDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agentnexus_tool_execution_duration_seconds",
		Help:    "Tool execution duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})

	TokenRefreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agentnexus_token_refreshes_total",
		Help: "Credential refresh attempts by provider and outcome",
	}, []string{"provider", "outcome"})

	AgentCache = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agentnexus_agent_cache_requests_total",
		Help: "Agent instance cache lookups by result (hit, miss)",
	}, []string{"result"})

	AgentBuilds = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agentnexus_agent_builds_total",
		Help: "Agent assemblies by outcome",
	}, []string{"outcome"})

	LLMRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agentnexus_llm_requests_total",
		Help: "LLM completion requests by outcome",
	}, []string{"outcome"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		ToolCalls, ToolDuration, TokenRefreshes, AgentCache, AgentBuilds, LLMRequests,
	)
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveTool records one tool execution.
func ObserveTool(provider string, started time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	ToolCalls.WithLabelValues(provider, outcome).Inc()
	ToolDuration.WithLabelValues(provider).Observe(time.Since(started).Seconds())
}
