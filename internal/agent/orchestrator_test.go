package agent

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/haasonsaas/sentinel/internal/audit"
	"github.com/haasonsaas/sentinel/internal/conversation"
	"github.com/haasonsaas/sentinel/internal/retry"
	"github.com/haasonsaas/sentinel/internal/tools"
	"github.com/haasonsaas/sentinel/pkg/models"
)

// scriptedProvider replays one response per call to Complete, in
// order, so tests can script exact round-by-round LLM behavior.
type scriptedProvider struct {
	name      string
	responses [][]CompletionChunk
	calls     int
	errs      []error // parallel to responses; if set for a call, returned instead
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan CompletionChunk, error) {
	idx := p.calls
	p.calls++
	if idx < len(p.errs) && p.errs[idx] != nil {
		return nil, p.errs[idx]
	}
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	ch := make(chan CompletionChunk, len(p.responses[idx]))
	for _, c := range p.responses[idx] {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func textResponse(text string) []CompletionChunk {
	return []CompletionChunk{
		{Kind: ChunkText, TextDelta: text},
		{Kind: ChunkDone, StopReason: StopEndTurn},
	}
}

func toolUseResponse(id, name string, args string) []CompletionChunk {
	return []CompletionChunk{
		{Kind: ChunkToolUse, ToolUse: toolUseBlockPtr(id, name, args)},
		{Kind: ChunkDone, StopReason: StopToolUse},
	}
}

func toolUseBlockPtr(id, name, args string) *models.AssistantBlock {
	b := models.ToolUseBlock(id, name, json.RawMessage(args))
	return &b
}

// fakeDispatcher always returns a scripted result for any tool name.
type fakeDispatcher struct {
	result    *tools.Result
	err       error
	endCalled []string
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, name string, args json.RawMessage) (*tools.Result, error) {
	return d.result, d.err
}

func (d *fakeDispatcher) Schemas() []tools.Definition { return nil }

func (d *fakeDispatcher) EndTurn(turnID string) { d.endCalled = append(d.endCalled, turnID) }

func testLogger(t *testing.T) *audit.Logger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.log")
	logger, err := audit.NewLogger(audit.Config{Output: "file:" + path, FlushInterval: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger
}

func TestRunTurnTextOnlyResponse(t *testing.T) {
	provider := &scriptedProvider{name: "fake", responses: [][]CompletionChunk{textResponse("hello\n")}}
	dispatcher := &fakeDispatcher{}
	store := conversation.NewMemoryStore()
	orch := NewOrchestrator(provider, dispatcher, store, testLogger(t), DefaultConfig())

	key := models.ConversationKey{Platform: models.PlatformTelegram, ChatID: "chat-1"}
	reply, err := orch.RunTurn(context.Background(), key, "read /tmp/a.txt")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if reply != "hello\n" {
		t.Errorf("reply = %q, want %q", reply, "hello\n")
	}

	conv, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(conv.Messages) != 2 {
		t.Fatalf("expected 2 messages (user + assistant), got %d", len(conv.Messages))
	}
	if conv.Messages[0].Role != models.RoleUser || conv.Messages[1].Role != models.RoleAssistant {
		t.Errorf("unexpected role sequence: %v, %v", conv.Messages[0].Role, conv.Messages[1].Role)
	}
}

func TestRunTurnToolRoundThenFinalText(t *testing.T) {
	provider := &scriptedProvider{
		name: "fake",
		responses: [][]CompletionChunk{
			toolUseResponse("tu-1", "read_file", `{"path":"/tmp/a.txt"}`),
			textResponse("the file says hello"),
		},
	}
	okResult, _ := json.Marshal(map[string]string{"content": "hello\n"})
	dispatcher := &fakeDispatcher{result: &tools.Result{Content: string(okResult)}}
	store := conversation.NewMemoryStore()
	orch := NewOrchestrator(provider, dispatcher, store, testLogger(t), DefaultConfig())

	key := models.ConversationKey{Platform: models.PlatformDiscord, ChatID: "chat-2"}
	reply, err := orch.RunTurn(context.Background(), key, "read /tmp/a.txt")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if reply != "the file says hello" {
		t.Errorf("reply = %q", reply)
	}

	conv, _ := store.Get(context.Background(), key)
	// user, assistant(tool_use), tool(result), assistant(final text)
	if len(conv.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d: %+v", len(conv.Messages), conv.Messages)
	}
	if conv.Messages[2].Role != models.RoleTool {
		t.Errorf("expected message 2 to be a tool result, got %v", conv.Messages[2].Role)
	}
	if len(conv.Messages[2].ToolResults) != 1 || conv.Messages[2].ToolResults[0].ToolCallID != "tu-1" {
		t.Errorf("tool result did not echo the tool_use id: %+v", conv.Messages[2].ToolResults)
	}
}

func TestRunTurnToolFailureDoesNotEndTurn(t *testing.T) {
	provider := &scriptedProvider{
		name: "fake",
		responses: [][]CompletionChunk{
			toolUseResponse("tu-1", "read_file", `{"path":"/etc/passwd"}`),
			textResponse("I can't read that file."),
		},
	}
	errResult, _ := json.Marshal(map[string]string{"kind": "denied", "message": "outside grant"})
	dispatcher := &fakeDispatcher{result: &tools.Result{Content: string(errResult), IsError: true}}
	store := conversation.NewMemoryStore()
	orch := NewOrchestrator(provider, dispatcher, store, testLogger(t), DefaultConfig())

	key := models.ConversationKey{Platform: models.PlatformSlack, ChatID: "chat-3"}
	reply, err := orch.RunTurn(context.Background(), key, "read /etc/passwd")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if reply != "I can't read that file." {
		t.Errorf("reply = %q", reply)
	}

	conv, _ := store.Get(context.Background(), key)
	toolMsg := conv.Messages[2]
	if !toolMsg.ToolResults[0].IsError {
		t.Error("expected the tool result to be marked is_error")
	}
}

func TestRunTurnIterationCapReached(t *testing.T) {
	responses := make([][]CompletionChunk, 0, 11)
	for i := 0; i < 11; i++ {
		responses = append(responses, toolUseResponse("tu", "read_file", `{"path":"/tmp/a.txt"}`))
	}
	provider := &scriptedProvider{name: "fake", responses: responses}
	okResult, _ := json.Marshal(map[string]string{"content": "x"})
	dispatcher := &fakeDispatcher{result: &tools.Result{Content: string(okResult)}}
	store := conversation.NewMemoryStore()
	cfg := DefaultConfig()
	cfg.MaxToolRounds = 10
	orch := NewOrchestrator(provider, dispatcher, store, testLogger(t), cfg)

	key := models.ConversationKey{Platform: models.PlatformTelegram, ChatID: "chat-4"}
	reply, err := orch.RunTurn(context.Background(), key, "loop forever")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if reply != toolUseLimitText {
		t.Errorf("reply = %q, want %q", reply, toolUseLimitText)
	}
	if provider.calls != 10 {
		t.Errorf("expected exactly 10 LLM calls (MaxToolRounds), got %d", provider.calls)
	}
}

func TestRunTurnRateLimitedRetriesThenSucceeds(t *testing.T) {
	provider := &scriptedProvider{
		name:      "fake",
		responses: [][]CompletionChunk{nil, textResponse("recovered")},
		errs:      []error{&ErrRateLimited{Provider: "fake", RetryAfter: time.Millisecond}, nil},
	}
	dispatcher := &fakeDispatcher{}
	store := conversation.NewMemoryStore()
	cfg := DefaultConfig()
	cfg.TransportRetry = retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Factor: 2, Jitter: false}
	orch := NewOrchestrator(provider, dispatcher, store, testLogger(t), cfg)

	key := models.ConversationKey{Platform: models.PlatformTelegram, ChatID: "chat-5"}
	reply, err := orch.RunTurn(context.Background(), key, "hi")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if reply != "recovered" {
		t.Errorf("reply = %q, want %q", reply, "recovered")
	}
}

func TestRunTurnPersistentTransportFailureReturnsApology(t *testing.T) {
	provider := &scriptedProvider{
		name:      "fake",
		responses: [][]CompletionChunk{nil, nil, nil},
		errs:      []error{errBoom{}, errBoom{}, errBoom{}},
	}
	dispatcher := &fakeDispatcher{}
	store := conversation.NewMemoryStore()
	cfg := DefaultConfig()
	cfg.TransportRetry = retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Factor: 1, Jitter: false}
	orch := NewOrchestrator(provider, dispatcher, store, testLogger(t), cfg)

	key := models.ConversationKey{Platform: models.PlatformTelegram, ChatID: "chat-6"}
	reply, err := orch.RunTurn(context.Background(), key, "hi")
	if err != nil {
		t.Fatalf("RunTurn returned error instead of apology text: %v", err)
	}
	if reply != transportUnavailableText {
		t.Errorf("reply = %q, want the unavailable apology", reply)
	}
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

func TestDispatcherSerializesTurns(t *testing.T) {
	provider := &scriptedProvider{name: "fake", responses: [][]CompletionChunk{textResponse("ok")}}
	dispatcher := &fakeDispatcher{}
	store := conversation.NewMemoryStore()
	orch := NewOrchestrator(provider, dispatcher, store, testLogger(t), DefaultConfig())
	d := NewDispatcher(orch)

	key := models.ConversationKey{Platform: models.PlatformTelegram, ChatID: "chat-7"}
	done := make(chan struct{})
	go func() {
		d.RunTurn(context.Background(), key, "a")
		close(done)
	}()
	<-done

	if _, err := d.RunTurn(context.Background(), key, "b"); err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
}
