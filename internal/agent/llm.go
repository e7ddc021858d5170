package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/haasonsaas/sentinel/internal/tools"
	"github.com/haasonsaas/sentinel/pkg/models"
)

// StopReason is why a completion stream ended.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
	StopError     StopReason = "error"
)

// ChunkKind tags which field of CompletionChunk is populated.
type ChunkKind string

const (
	ChunkText    ChunkKind = "text_delta"
	ChunkToolUse ChunkKind = "tool_use"
	ChunkDone    ChunkKind = "done"
	ChunkError   ChunkKind = "error"
)

// CompletionChunk is one event from a provider's response stream. The
// orchestrator accumulates TextDelta chunks into a text block that is
// closed whenever a ToolUse chunk arrives, so text and tool-use blocks
// keep their arrival order. StopReason is recorded off the terminal
// ChunkDone event; whether the turn continues depends on whether any
// ToolUse blocks arrived, not on StopReason.
type CompletionChunk struct {
	Kind       ChunkKind
	TextDelta  string
	ToolUse    *models.AssistantBlock
	StopReason StopReason
	Err        error
}

// CompletionRequest is one turn's worth of context sent to the LLM.
type CompletionRequest struct {
	Model     string
	System    string
	Messages  []*models.Message
	Tools     []tools.Definition
	MaxTokens int
}

// LLMProvider is the contract the turn orchestrator drives. Providers
// stream chunks rather than returning a single Response; the
// orchestrator consumes the whole stream before acting on it, and the
// turn's reply text is handed back only when the turn ends.
type LLMProvider interface {
	Name() string
	Complete(ctx context.Context, req *CompletionRequest) (<-chan CompletionChunk, error)
}

// ErrRateLimited signals a provider-side rate limit with the delay the
// provider asked the caller to wait before retrying.
type ErrRateLimited struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *ErrRateLimited) Error() string {
	return fmt.Sprintf("%s: rate limited, retry after %s", e.Provider, e.RetryAfter)
}

// DefaultMaxTokens is used when a request does not specify one.
const DefaultMaxTokens = 4096

// MaxTokensOrDefault normalizes a requested token budget, shared by
// both provider implementations.
func MaxTokensOrDefault(requested int) int {
	if requested <= 0 {
		return DefaultMaxTokens
	}
	return requested
}
