package connector

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/haasonsaas/sentinel/internal/agent"
	"github.com/haasonsaas/sentinel/internal/audit"
	"github.com/haasonsaas/sentinel/internal/capability"
	"github.com/haasonsaas/sentinel/internal/conversation"
	"github.com/haasonsaas/sentinel/internal/tools"
	"github.com/haasonsaas/sentinel/pkg/models"
)

// echoProvider answers every completion with a fixed text reply and
// no tool calls, standing in for a real LLMProvider.
type echoProvider struct{ reply string }

func (p *echoProvider) Name() string { return "echo" }

func (p *echoProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan agent.CompletionChunk, error) {
	ch := make(chan agent.CompletionChunk, 2)
	ch <- agent.CompletionChunk{Kind: agent.ChunkText, TextDelta: p.reply}
	ch <- agent.CompletionChunk{Kind: agent.ChunkDone, StopReason: agent.StopEndTurn}
	close(ch)
	return ch, nil
}

type noopDispatcher struct{}

func (noopDispatcher) Dispatch(ctx context.Context, name string, args json.RawMessage) (*tools.Result, error) {
	return &tools.Result{Content: "{}"}, nil
}
func (noopDispatcher) Schemas() []tools.Definition { return nil }
func (noopDispatcher) EndTurn(turnID string)       {}

// fakeConnector is an in-memory Connector used to drive Registry.Run
// without a real messaging platform.
type fakeConnector struct {
	mu       sync.Mutex
	inbox    []IncomingMessage
	sent     []string
	polled   int
	platform string
}

func (f *fakeConnector) PlatformName() string { return f.platform }

func (f *fakeConnector) PollMessages(ctx context.Context) ([]IncomingMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polled++
	msgs := f.inbox
	f.inbox = nil
	return msgs, nil
}

func (f *fakeConnector) SendMessage(ctx context.Context, chatID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeConnector) SendMessageGetID(ctx context.Context, chatID, text string) (string, error) {
	return "msg-1", f.SendMessage(ctx, chatID, text)
}

func (f *fakeConnector) EditMessageText(ctx context.Context, chatID, messageID, text string) error {
	return nil
}

func newTestRegistry(t *testing.T, reply string, allowedUsers []string) (*Registry, *fakeConnector) {
	t.Helper()

	auditLogger, err := audit.NewLogger(audit.Config{Output: "stderr"})
	if err != nil {
		t.Fatalf("audit.NewLogger: %v", err)
	}
	t.Cleanup(func() { auditLogger.Close() })

	orch := agent.NewOrchestrator(&echoProvider{reply: reply}, noopDispatcher{}, conversation.NewMemoryStore(), auditLogger, agent.Config{})
	dispatcher := agent.NewDispatcher(orch)

	grant, err := capability.New(capability.GrantConfig{AllowedUsers: allowedUsers}, nil)
	if err != nil {
		t.Fatalf("capability.New: %v", err)
	}
	checker := capability.NewChecker(grant, nil, nil)

	fc := &fakeConnector{platform: "telegram"}
	reg := NewRegistry([]Connector{fc}, dispatcher, conversation.NewMemoryStore(), checker, nil)
	return reg, fc
}

func TestRegistryHandleRunsTurnAndSendsReply(t *testing.T) {
	reg, fc := newTestRegistry(t, "hello there", nil)

	fc.inbox = []IncomingMessage{{ChatID: "chat-1", UserID: "u1", Text: "hi"}}
	reg.pollOne(context.Background(), fc)

	fc.mu.Lock()
	defer fc.mu.Unlock()
	if len(fc.sent) != 1 || fc.sent[0] != "hello there" {
		t.Fatalf("sent = %v", fc.sent)
	}
}

func TestRegistryHandleDeniesUserNotInAllowlist(t *testing.T) {
	reg, fc := newTestRegistry(t, "should not be sent", []string{"allowed-user"})

	fc.inbox = []IncomingMessage{{ChatID: "chat-1", UserID: "someone-else", Text: "hi"}}
	reg.pollOne(context.Background(), fc)

	fc.mu.Lock()
	defer fc.mu.Unlock()
	if len(fc.sent) != 0 {
		t.Fatalf("expected no reply for a denied user, got %v", fc.sent)
	}
}

func TestRegistryHandleClearResetsConversationAndConfirms(t *testing.T) {
	reg, fc := newTestRegistry(t, "unused", nil)

	key := models.ConversationKey{Platform: models.PlatformTelegram, ChatID: "chat-1"}
	if err := reg.store.Append(context.Background(), key, models.UserMessage("earlier message"), 40); err != nil {
		t.Fatalf("Append: %v", err)
	}

	fc.inbox = []IncomingMessage{{ChatID: "chat-1", UserID: "u1", Text: "/clear"}}
	reg.pollOne(context.Background(), fc)

	conv, err := reg.store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(conv.Messages) != 0 {
		t.Errorf("expected conversation cleared, got %d messages", len(conv.Messages))
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()
	if len(fc.sent) != 1 {
		t.Fatalf("expected one confirmation message, got %v", fc.sent)
	}
}
