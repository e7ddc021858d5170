// Package conversation implements Sentinel's per-(platform, chat)
// message history: an append-only sequence within a turn, capped at a
// configurable length with matched-pair eviction (spec.md §3-ii), and
// an atomic reset for the `/clear` command.
package conversation

import (
	"context"

	"github.com/haasonsaas/sentinel/pkg/models"
)

// Store is the conversation persistence contract. Sentinel ships three
// implementations: MemoryStore (default), PostgresStore (durable) and
// SQLiteStore (embedded, single-file); the latter two are opt-in via
// configuration.
type Store interface {
	// Get returns the conversation for key, creating an empty one if
	// none exists yet.
	Get(ctx context.Context, key models.ConversationKey) (*models.Conversation, error)

	// Append adds msg to the conversation identified by key and trims
	// the result to historyCap messages in matched pairs.
	Append(ctx context.Context, key models.ConversationKey, msg *models.Message, historyCap int) error

	// Clear atomically resets the conversation to empty.
	Clear(ctx context.Context, key models.ConversationKey) error
}

// TrimMatchedPairs trims messages to at most cap entries, evicting
// from the oldest end, without ever leaving a ToolResult message whose
// matching Assistant(tool_use) message has been evicted (spec.md
// §3-ii, §9 "Bounded history"). cap <= 0 means no trimming.
func TrimMatchedPairs(messages []*models.Message, cap int) []*models.Message {
	if cap <= 0 || len(messages) <= cap {
		return messages
	}

	start := len(messages) - cap

	// A ToolResult message always immediately follows the
	// Assistant(tool_use) message that requested it. If the trim
	// boundary lands on a ToolResult, its pairing Assistant message
	// falls just before the boundary and would be trimmed away,
	// leaving a dangling reference — drop the ToolResult too.
	for start < len(messages) && messages[start].Role == models.RoleTool {
		start++
	}

	return messages[start:]
}
