// Package agent implements Sentinel's turn orchestrator: the state
// machine that drives one user message to a final reply through
// bounded text/tool-use rounds (spec.md §4.4), plus the LLM provider
// contract (llm.go) and typed error taxonomy (errors.go) the
// orchestrator depends on.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/sentinel/internal/audit"
	"github.com/haasonsaas/sentinel/internal/conversation"
	"github.com/haasonsaas/sentinel/internal/retry"
	"github.com/haasonsaas/sentinel/internal/tools"
	"github.com/haasonsaas/sentinel/pkg/models"
)

// ToolDispatcher resolves a tool_use block's name to either a
// built-in tool or a skill and executes it. Sentinel wires two
// implementations behind this interface: RegistryDispatcher (built-ins
// only) and a chained dispatcher that falls through to
// internal/skillrunner for anything the registry doesn't recognize.
type ToolDispatcher interface {
	// Dispatch runs the named tool with the given arguments and
	// returns its structured result. An error return means the
	// dispatch itself failed in a way no tool produces on its own
	// (e.g. a panic recovered mid-call) — the orchestrator treats it
	// identically to a Result with IsError=true, Kind=internal.
	Dispatch(ctx context.Context, name string, args json.RawMessage) (*tools.Result, error)

	// Schemas returns every dispatchable tool's LLM-facing definition.
	Schemas() []tools.Definition

	// EndTurn tears down anything scoped to the current turn (warm
	// skill sessions). Called unconditionally when a turn ends,
	// including on cancellation.
	EndTurn(turnID string)
}

// RegistryDispatcher adapts a *tools.Registry — the built-in
// read_file/write_file/list_directory/run_command set — to
// ToolDispatcher. It never owns skill subprocesses, so EndTurn is a
// no-op.
type RegistryDispatcher struct {
	registry *tools.Registry
}

// NewRegistryDispatcher wraps registry as a ToolDispatcher.
func NewRegistryDispatcher(registry *tools.Registry) *RegistryDispatcher {
	return &RegistryDispatcher{registry: registry}
}

func (d *RegistryDispatcher) Dispatch(ctx context.Context, name string, args json.RawMessage) (*tools.Result, error) {
	tool, ok := d.registry.Lookup(name)
	if !ok {
		return notFoundResult(name), nil
	}
	return tool.Execute(ctx, args)
}

func (d *RegistryDispatcher) Schemas() []tools.Definition { return d.registry.Schemas() }

func (d *RegistryDispatcher) EndTurn(turnID string) {}

// ChainDispatcher tries each dispatcher in order and returns the first
// result that isn't a not-found outcome — the shape that lets the
// built-in registry take priority over skill-provided tools sharing no
// name collision, per spec.md §4.3's "prefixed to avoid name collision
// with built-ins".
type ChainDispatcher struct {
	dispatchers []ToolDispatcher
}

// NewChainDispatcher builds a dispatcher that consults each of ds in
// order.
func NewChainDispatcher(ds ...ToolDispatcher) *ChainDispatcher {
	return &ChainDispatcher{dispatchers: ds}
}

func (c *ChainDispatcher) Dispatch(ctx context.Context, name string, args json.RawMessage) (*tools.Result, error) {
	var last *tools.Result
	for _, d := range c.dispatchers {
		res, err := d.Dispatch(ctx, name, args)
		if err != nil {
			return res, err
		}
		if res == nil || !isNotFound(res) {
			return res, nil
		}
		last = res
	}
	if last == nil {
		return notFoundResult(name), nil
	}
	return last, nil
}

func (c *ChainDispatcher) Schemas() []tools.Definition {
	var all []tools.Definition
	for _, d := range c.dispatchers {
		all = append(all, d.Schemas()...)
	}
	return all
}

func (c *ChainDispatcher) EndTurn(turnID string) {
	for _, d := range c.dispatchers {
		d.EndTurn(turnID)
	}
}

func notFoundResult(name string) *tools.Result {
	data, _ := json.Marshal(map[string]string{"kind": string(tools.KindNotFound), "message": "unknown tool: " + name})
	return &tools.Result{Content: string(data), IsError: true}
}

// isNotFound peeks at a Result's JSON error body to see whether it is
// the not_found sentinel ChainDispatcher produces when a stage doesn't
// recognize the tool, vs. a genuine error from a stage that does.
func isNotFound(r *tools.Result) bool {
	if !r.IsError {
		return false
	}
	var body struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal([]byte(r.Content), &body); err != nil {
		return false
	}
	return body.Kind == string(tools.KindNotFound)
}

// Config controls the orchestrator's bounds, independent of any one
// conversation.
type Config struct {
	// MaxToolRounds bounds tool-use rounds within a turn (spec.md §4.4).
	MaxToolRounds int
	// HistoryCap bounds conversation length after trimming (spec.md §3-ii).
	HistoryCap int
	// Model is the default model string passed to the provider.
	Model string
	// System is the default system prompt.
	System string
	// MaxTokens bounds the provider's response length.
	MaxTokens int
	// TransportRetry configures LLM transport retry/backoff.
	TransportRetry retry.Config
}

// DefaultConfig returns spec.md's defaults: 10 tool rounds, 40-message
// history cap, 3 transport attempts with exponential backoff.
func DefaultConfig() Config {
	return Config{
		MaxToolRounds:  10,
		HistoryCap:     40,
		MaxTokens:      DefaultMaxTokens,
		TransportRetry: retry.DefaultConfig(),
	}
}

// toolUseLimitText is the synthetic assistant reply sent when a turn
// exhausts MaxToolRounds without a final text block (spec.md §4.4
// step 3).
const toolUseLimitText = "(tool-use limit reached)"

// transportUnavailableText is the user-visible reply when the LLM
// provider fails persistently (spec.md §7: "always short,
// non-revealing strings").
const transportUnavailableText = "Sorry, I'm temporarily unavailable. Please try again shortly."

// Orchestrator drives one user message to a final reply through
// bounded text/tool-use rounds. It holds no per-conversation state of
// its own — all history lives in the Store — so a single Orchestrator
// safely serves every conversation, one RunTurn at a time (enforced by
// Dispatcher, not by Orchestrator itself).
type Orchestrator struct {
	provider   LLMProvider
	dispatcher ToolDispatcher
	store      conversation.Store
	audit      *audit.Logger
	config     Config
}

// NewOrchestrator builds an Orchestrator. If cfg is the zero value,
// DefaultConfig is used.
func NewOrchestrator(provider LLMProvider, dispatcher ToolDispatcher, store conversation.Store, auditLogger *audit.Logger, cfg Config) *Orchestrator {
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = DefaultConfig().MaxToolRounds
	}
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = DefaultConfig().HistoryCap
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.TransportRetry.MaxAttempts <= 0 {
		cfg.TransportRetry = retry.DefaultConfig()
	}
	return &Orchestrator{provider: provider, dispatcher: dispatcher, store: store, audit: auditLogger, config: cfg}
}

// RunTurn executes spec.md §4.4's contract for one user message and
// returns the final reply text to send back through the connector.
func (o *Orchestrator) RunTurn(ctx context.Context, key models.ConversationKey, userText string) (string, error) {
	turnID := uuid.NewString()
	ctx = tools.WithTurnID(ctx, turnID)
	o.audit.TurnBegin(turnID)
	defer o.dispatcher.EndTurn(turnID)

	if err := o.store.Append(ctx, key, models.UserMessage(userText), o.config.HistoryCap); err != nil {
		o.audit.TurnCancelled(turnID, "store_append_failed")
		return "", fmt.Errorf("orchestrator: append user message: %w", err)
	}

	for round := 0; round < o.config.MaxToolRounds; round++ {
		select {
		case <-ctx.Done():
			o.audit.TurnCancelled(turnID, ctx.Err().Error())
			return "", ctx.Err()
		default:
		}

		conv, err := o.store.Get(ctx, key)
		if err != nil {
			o.audit.TurnCancelled(turnID, "store_get_failed")
			return "", fmt.Errorf("orchestrator: get conversation: %w", err)
		}

		blocks, stopReason, err := o.callLLM(ctx, conv.Messages)
		if err != nil {
			o.audit.TurnEnd(turnID)
			if ctx.Err() != nil {
				o.audit.TurnCancelled(turnID, ctx.Err().Error())
				return "", ctx.Err()
			}
			return transportUnavailableText, nil
		}
		_ = stopReason

		assistantMsg := models.AssistantMessage(blocks)
		if err := o.store.Append(ctx, key, assistantMsg, o.config.HistoryCap); err != nil {
			o.audit.TurnCancelled(turnID, "store_append_failed")
			return "", fmt.Errorf("orchestrator: append assistant message: %w", err)
		}

		toolUses := toolUseBlocks(blocks)
		if len(toolUses) == 0 {
			o.audit.TurnEnd(turnID)
			return concatenatedText(blocks), nil
		}

		results := o.runToolRound(ctx, turnID, toolUses)
		if err := o.store.Append(ctx, key, models.ToolResultMessage(results), o.config.HistoryCap); err != nil {
			o.audit.TurnCancelled(turnID, "store_append_failed")
			return "", fmt.Errorf("orchestrator: append tool results: %w", err)
		}
	}

	limitMsg := models.AssistantMessage([]models.AssistantBlock{models.TextBlock(toolUseLimitText)})
	if err := o.store.Append(ctx, key, limitMsg, o.config.HistoryCap); err != nil {
		o.audit.TurnCancelled(turnID, "store_append_failed")
		return "", fmt.Errorf("orchestrator: append limit message: %w", err)
	}
	o.audit.TurnEnd(turnID)
	return toolUseLimitText, nil
}

// runToolRound executes every ToolUse block in order (spec.md §4.4
// step 2c) and builds the matching ToolResult slice. A single tool
// failure never aborts the round — it becomes an is_error=true result
// and the loop continues to the next block.
func (o *Orchestrator) runToolRound(ctx context.Context, turnID string, toolUses []models.AssistantBlock) []models.ToolResult {
	results := make([]models.ToolResult, 0, len(toolUses))
	for _, block := range toolUses {
		o.audit.ToolInvoke(turnID, block.ToolUseID, block.ToolName)

		res, err := o.dispatcher.Dispatch(ctx, block.ToolName, block.ToolArgs)
		if err != nil {
			res = internalErrorResult(err)
		}

		isError := res == nil || res.IsError
		content := ""
		if res != nil {
			content = res.Content
		}
		o.audit.ToolResult(turnID, block.ToolUseID, block.ToolName, isError)
		results = append(results, models.ToolResult{ToolCallID: block.ToolUseID, Content: content, IsError: isError})
	}
	return results
}

// callLLM sends one completion request and accumulates its streamed
// chunks into an ordered block sequence, retrying transport failures
// per spec.md §4.4/§7. Rate-limit errors first wait the provider's
// requested delay; every retryable transport error then backs off per
// config.TransportRetry; a fatal classification or an exhausted
// retry budget is reported to the caller as an error.
func (o *Orchestrator) callLLM(ctx context.Context, history []*models.Message) ([]models.AssistantBlock, StopReason, error) {
	req := &CompletionRequest{
		Model:     o.config.Model,
		System:    o.config.System,
		Messages:  history,
		Tools:     o.dispatcher.Schemas(),
		MaxTokens: MaxTokensOrDefault(o.config.MaxTokens),
	}

	var blocks []models.AssistantBlock
	var stopReason StopReason

	result := retry.Do(ctx, o.config.TransportRetry, func() error {
		blocks = nil
		stopReason = ""

		stream, err := o.provider.Complete(ctx, req)
		if err != nil {
			return o.classifyAndWrap(ctx, err)
		}

		var text string
		for chunk := range stream {
			switch chunk.Kind {
			case ChunkText:
				text += chunk.TextDelta
			case ChunkToolUse:
				if text != "" {
					blocks = append(blocks, models.TextBlock(text))
					text = ""
				}
				if chunk.ToolUse != nil {
					blocks = append(blocks, *chunk.ToolUse)
				}
			case ChunkDone:
				stopReason = chunk.StopReason
			case ChunkError:
				return o.classifyAndWrap(ctx, chunk.Err)
			}
		}
		if text != "" {
			blocks = append(blocks, models.TextBlock(text))
		}
		return nil
	})

	if result.Err != nil {
		return nil, "", result.Err
	}
	return blocks, stopReason, nil
}

// classifyAndWrap turns a raw provider error into a retry.PermanentError
// when it is fatal (or not retryable), so retry.Do stops immediately
// instead of burning the remaining attempt budget. A rate-limit delay
// is honored directly here — sleeping the provider's requested
// duration before returning — and retry.Do then waits its own
// exponential backoff on top of it before the next attempt, per
// spec.md §6's "respect retry-after".
func (o *Orchestrator) classifyAndWrap(ctx context.Context, err error) error {
	transportErr := classifyTransportError(o.provider.Name(), err)
	if transportErr.Fatal || !transportErr.Retryable {
		return &retry.PermanentError{Err: transportErr}
	}
	if transportErr.RetryAfter > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(transportErr.RetryAfter):
		}
	}
	return transportErr
}

func toolUseBlocks(blocks []models.AssistantBlock) []models.AssistantBlock {
	var out []models.AssistantBlock
	for _, b := range blocks {
		if b.Kind == models.BlockToolUse {
			out = append(out, b)
		}
	}
	return out
}

func concatenatedText(blocks []models.AssistantBlock) string {
	var out string
	for _, b := range blocks {
		if b.Kind == models.BlockText {
			out += b.Text
		}
	}
	return out
}

func internalErrorResult(err error) *tools.Result {
	data, marshalErr := json.Marshal(map[string]string{"kind": string(KindInternal), "message": err.Error()})
	if marshalErr != nil {
		return &tools.Result{Content: err.Error(), IsError: true}
	}
	return &tools.Result{Content: string(data), IsError: true}
}
