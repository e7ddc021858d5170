package agent

import (
	"errors"
	"fmt"
	"time"

	"github.com/haasonsaas/sentinel/internal/tools"
)

// ConfigError reports a missing or malformed configuration value.
// Fatal at startup; the orchestrator never raises one at runtime.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// CapabilityDenied reports that a requested effect fell outside the
// process grant. It is never fatal — the orchestrator turns it into a
// tool_result with is_error=true and continues the turn.
type CapabilityDenied struct {
	Capability string
	Resource   string
	Reason     string
}

func (e *CapabilityDenied) Error() string {
	return fmt.Sprintf("capability denied: %s %s (%s)", e.Capability, e.Resource, e.Reason)
}

// ToolError is the orchestrator-facing wrapper around a tools.Result
// error outcome or an internal dispatch failure, carrying enough
// context to build the audit tool_result event and the ToolResult
// message sent back to the LLM. Not fatal — every ToolError becomes an
// is_error=true tool_result and the turn proceeds.
type ToolError struct {
	Kind       tools.ErrorKind
	ToolName   string
	ToolCallID string
	Message    string
	Cause      error
}

func (e *ToolError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("tool %s [%s]: %s", e.ToolName, e.Kind, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("tool %s [%s]: %v", e.ToolName, e.Kind, e.Cause)
	}
	return fmt.Sprintf("tool %s [%s]", e.ToolName, e.Kind)
}

func (e *ToolError) Unwrap() error { return e.Cause }

// KindInternal classifies failures the orchestrator itself detects
// (a dispatch panic, a dispatcher returning neither result nor error
// correctly) rather than ones reported by tools.Result.
const KindInternal tools.ErrorKind = "internal"

// LlmTransportError reports a failure calling the LLM provider.
// Retryable errors are retried with exponential backoff up to a
// bound; RateLimited carries the delay the provider asked for
// (honored verbatim, capped by the retry budget); Fatal ends the turn
// with a user-visible apology.
type LlmTransportError struct {
	Provider   string
	Retryable  bool
	Fatal      bool
	RetryAfter time.Duration
	Cause      error
}

func (e *LlmTransportError) Error() string {
	switch {
	case e.RetryAfter > 0:
		return fmt.Sprintf("%s: rate limited, retry after %s", e.Provider, e.RetryAfter)
	case e.Cause != nil:
		return fmt.Sprintf("%s: transport error: %v", e.Provider, e.Cause)
	default:
		return fmt.Sprintf("%s: transport error", e.Provider)
	}
}

func (e *LlmTransportError) Unwrap() error { return e.Cause }

// ConnectorError reports a connector-side failure (poll or send).
// Always non-fatal to the orchestrator: it is logged and the next
// connector poll cycle retries independently.
type ConnectorError struct {
	Platform string
	Op       string
	Cause    error
}

func (e *ConnectorError) Error() string {
	return fmt.Sprintf("connector %s: %s: %v", e.Platform, e.Op, e.Cause)
}

func (e *ConnectorError) Unwrap() error { return e.Cause }

// classifyTransportError turns a raw provider error into an
// LlmTransportError, preserving an ErrRateLimited's retry delay.
func classifyTransportError(provider string, err error) *LlmTransportError {
	var rateLimited *ErrRateLimited
	if errors.As(err, &rateLimited) {
		return &LlmTransportError{
			Provider:   provider,
			Retryable:  true,
			RetryAfter: rateLimited.RetryAfter,
			Cause:      err,
		}
	}
	return &LlmTransportError{Provider: provider, Retryable: true, Cause: err}
}

// IsFatalTransportError reports whether err should end the turn
// rather than be retried again.
func IsFatalTransportError(err error) bool {
	var transportErr *LlmTransportError
	if errors.As(err, &transportErr) {
		return transportErr.Fatal
	}
	return false
}
