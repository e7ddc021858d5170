package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is a centralized set of Prometheus collectors covering
// Sentinel's three observable surfaces: capability decisions, tool
// executions, and LLM requests. Connector message flow is covered too
// since it is the thing every turn starts and ends with.
type Metrics struct {
	// CapabilityDecisions counts every Checker decision by resource
	// kind and outcome. Labels: kind (path|command|net|user),
	// decision (allowed|denied).
	CapabilityDecisions *prometheus.CounterVec

	// ToolExecutions counts built-in tool invocations.
	// Labels: tool_name, status (success|error).
	ToolExecutions *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution latency.
	// Labels: tool_name.
	ToolExecutionDuration *prometheus.HistogramVec

	// LLMRequests counts completion requests by provider and outcome.
	// Labels: provider, model, status (success|error|rate_limited).
	LLMRequests *prometheus.CounterVec

	// LLMRequestDuration records one duration per LLM request.
	// Labels: provider, model.
	LLMRequestDuration *prometheus.HistogramVec

	// LLMTokensUsed tracks token consumption.
	// Labels: provider, model, kind (prompt|completion).
	LLMTokensUsed *prometheus.CounterVec

	// MessagesProcessed counts connector messages by platform and
	// direction. Labels: platform, direction (inbound|outbound).
	MessagesProcessed *prometheus.CounterVec

	// ActiveConversations is a gauge of live conversations by platform.
	ActiveConversations *prometheus.GaugeVec
}

// NewMetrics registers and returns the collector set. Call once per
// process; promauto panics on duplicate registration.
func NewMetrics() *Metrics {
	return &Metrics{
		CapabilityDecisions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_capability_decisions_total",
				Help: "Total capability check decisions by resource kind and outcome",
			},
			[]string{"kind", "decision"},
		),

		ToolExecutions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_tool_executions_total",
				Help: "Total tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sentinel_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		LLMRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_llm_requests_total",
				Help: "Total LLM completion requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sentinel_llm_request_duration_seconds",
				Help:    "Duration of LLM completion requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		LLMTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_llm_tokens_total",
				Help: "Total tokens consumed by provider, model, and kind",
			},
			[]string{"provider", "model", "kind"},
		),

		MessagesProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_messages_total",
				Help: "Total connector messages by platform and direction",
			},
			[]string{"platform", "direction"},
		),

		ActiveConversations: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sentinel_active_conversations",
				Help: "Current number of tracked conversations by platform",
			},
			[]string{"platform"},
		),
	}
}

// RecordCapabilityDecision records one Checker decision.
func (m *Metrics) RecordCapabilityDecision(kind, decision string) {
	m.CapabilityDecisions.WithLabelValues(kind, decision).Inc()
}

// RecordToolExecution records one tool invocation's outcome and
// latency.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutions.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordLLMRequest records one completion request's outcome, latency,
// and token usage.
func (m *Metrics) RecordLLMRequest(provider, model, status string, durationSeconds float64, promptTokens, completionTokens int) {
	m.LLMRequests.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if promptTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// MessageReceived records one inbound connector message.
func (m *Metrics) MessageReceived(platform string) {
	m.MessagesProcessed.WithLabelValues(platform, "inbound").Inc()
}

// MessageSent records one outbound connector message.
func (m *Metrics) MessageSent(platform string) {
	m.MessagesProcessed.WithLabelValues(platform, "outbound").Inc()
}

// ConversationStarted increments the active-conversation gauge.
func (m *Metrics) ConversationStarted(platform string) {
	m.ActiveConversations.WithLabelValues(platform).Inc()
}

// ConversationEnded decrements the active-conversation gauge.
func (m *Metrics) ConversationEnded(platform string) {
	m.ActiveConversations.WithLabelValues(platform).Dec()
}
