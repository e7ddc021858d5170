// Package observability provides metrics and distributed tracing for
// Sentinel. Structured logging uses plain log/slog directly at every
// call site (the same way internal/audit/logger.go logs its own
// lifecycle events) rather than a dedicated logger type here.
//
// # Overview
//
// Two pillars:
//
//  1. Metrics - Prometheus counters/histograms for capability
//     decisions, tool executions, LLM requests, and connector
//     message flow.
//  2. Tracing - OpenTelemetry spans around one turn and one tool call.
//
// # Metrics
//
//	metrics := observability.NewMetrics()
//
//	metrics.RecordCapabilityDecision("path", "denied")
//
//	start := time.Now()
//	// ... execute tool ...
//	metrics.RecordToolExecution("run_command", "success", time.Since(start).Seconds())
//
//	start = time.Now()
//	// ... call the LLM provider ...
//	metrics.RecordLLMRequest("anthropic", "claude-sonnet-4-20250514", "success",
//	    time.Since(start).Seconds(), promptTokens, completionTokens)
//
// # Tracing
//
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
//	    ServiceName: "sentinel",
//	    Endpoint:    os.Getenv("OTEL_ENDPOINT"),
//	})
//	defer shutdown(context.Background())
//
//	ctx, span := tracer.Start(ctx, "turn")
//	defer span.End()
//
// # Testing
//
//   - Metrics: verify with prometheus/testutil against an isolated
//     registry, never the package's NewMetrics() (which registers
//     against the default registry and would panic on a second call
//     within the same test binary).
//   - Tracing: NewTracer with an empty Endpoint returns a no-op
//     tracer that never exports.
package observability
