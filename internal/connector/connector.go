// Package connector defines the messaging-platform contract Sentinel
// polls for inbound text and sends outbound replies through (spec.md
// §4.6, §6), plus the round-robin dispatch loop that wires connectors
// to the agent orchestrator. Concrete platforms live in the telegram,
// discord, and slack subpackages.
package connector

import (
	"context"
	"time"
)

// IncomingMessage is one inbound message surfaced by a connector's
// PollMessages, carrying just enough to route it: which chat it
// belongs to, who sent it, and its text.
type IncomingMessage struct {
	ChatID     string
	UserID     string
	Text       string
	ReceivedAt time.Time
}

// Connector is the five-operation contract spec.md §6 names:
// poll_messages, send_message, send_message_get_id, edit_message_text,
// platform_name. Chunking a reply that exceeds the platform's size
// limit is the connector's job, not the dispatch loop's (spec.md
// §4.6).
type Connector interface {
	// PlatformName identifies the connector for conversation keys and
	// audit/log fields.
	PlatformName() string

	// PollMessages returns newly received messages, blocking up to the
	// connector's own long-poll timeout. An empty, nil-error result is
	// a normal "nothing new" poll, not a failure.
	PollMessages(ctx context.Context) ([]IncomingMessage, error)

	// SendMessage sends text to chatID, chunking internally if text
	// exceeds the platform's message size limit.
	SendMessage(ctx context.Context, chatID, text string) error

	// SendMessageGetID sends text to chatID and returns the platform's
	// identifier for the sent message, for later edits.
	SendMessageGetID(ctx context.Context, chatID, text string) (string, error)

	// EditMessageText replaces the text of a previously sent message.
	EditMessageText(ctx context.Context, chatID, messageID, text string) error
}
