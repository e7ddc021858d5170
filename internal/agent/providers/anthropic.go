// Package providers implements concrete agent.LLMProvider backends.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/haasonsaas/sentinel/internal/agent"
	"github.com/haasonsaas/sentinel/internal/agent/toolconv"
	"github.com/haasonsaas/sentinel/pkg/models"
)

// maxEmptyStreamEvents bounds how many consecutive no-op SSE events a
// stream may emit before it is treated as malformed rather than idle.
const maxEmptyStreamEvents = 50

// AnthropicConfig configures AnthropicProvider.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	MaxRetries   int
	RetryDelay   time.Duration
	DefaultModel string
}

// AnthropicProvider implements agent.LLMProvider over the Claude
// Messages API.
type AnthropicProvider struct {
	BaseProvider
	client       anthropic.Client
	defaultModel string
}

// NewAnthropicProvider constructs a provider from config.
func NewAnthropicProvider(config AnthropicConfig) (*AnthropicProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "claude-sonnet-4-20250514"
	}

	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if strings.TrimSpace(config.BaseURL) != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	return &AnthropicProvider{
		BaseProvider: NewBaseProvider("anthropic", config.MaxRetries, config.RetryDelay),
		client:       anthropic.NewClient(options...),
		defaultModel: config.DefaultModel,
	}, nil
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) model(requested string) string {
	if requested != "" {
		return requested
	}
	return p.defaultModel
}

// Complete streams a completion, retrying stream-creation failures
// with the BaseProvider's linear backoff; once a stream has started,
// mid-stream errors are surfaced as a terminal ChunkError rather than
// retried, since partial output has already been produced.
func (p *AnthropicProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan agent.CompletionChunk, error) {
	chunks := make(chan agent.CompletionChunk)

	go func() {
		defer close(chunks)

		var stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
		err := p.Retry(ctx, IsRetryable, func() error {
			var createErr error
			stream, createErr = p.createStream(ctx, req)
			return createErr
		})
		if err != nil {
			chunks <- agent.CompletionChunk{Kind: agent.ChunkError, Err: p.wrapError(err, p.model(req.Model))}
			return
		}

		p.processStream(stream, chunks, p.model(req.Model))
	}()

	return chunks, nil
}

func (p *AnthropicProvider) createStream(ctx context.Context, req *agent.CompletionRequest) (*ssestream.Stream[anthropic.MessageStreamEventUnion], error) {
	messages, err := convertMessagesAnthropic(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("anthropic: convert messages: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model(req.Model)),
		Messages:  messages,
		MaxTokens: int64(agent.MaxTokensOrDefault(req.MaxTokens)),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		toolParams, err := toolconv.ToAnthropicTools(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("anthropic: convert tools: %w", err)
		}
		params.Tools = toolParams
	}

	return p.client.Messages.NewStreaming(ctx, params), nil
}

func (p *AnthropicProvider) processStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], chunks chan<- agent.CompletionChunk, model string) {
	var toolID, toolName string
	var toolInput strings.Builder
	inToolUse := false
	emptyEvents := 0
	stopReason := agent.StopEndTurn

	for stream.Next() {
		event := stream.Current()
		handled := false

		switch event.Type {
		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				toolUse := block.AsToolUse()
				toolID, toolName = toolUse.ID, toolUse.Name
				toolInput.Reset()
				inToolUse = true
				handled = true
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					chunks <- agent.CompletionChunk{Kind: agent.ChunkText, TextDelta: delta.Text}
					handled = true
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					toolInput.WriteString(delta.PartialJSON)
					handled = true
				}
			}

		case "content_block_stop":
			if inToolUse {
				block := models.ToolUseBlock(toolID, toolName, json.RawMessage(toolInput.String()))
				chunks <- agent.CompletionChunk{Kind: agent.ChunkToolUse, ToolUse: &block}
				inToolUse = false
				handled = true
			}

		case "message_delta":
			switch event.AsMessageDelta().Delta.StopReason {
			case "tool_use":
				stopReason = agent.StopToolUse
			case "max_tokens":
				stopReason = agent.StopMaxTokens
			case "end_turn", "stop_sequence":
				stopReason = agent.StopEndTurn
			}
			handled = true

		case "message_stop":
			chunks <- agent.CompletionChunk{Kind: agent.ChunkDone, StopReason: stopReason}
			return

		case "error":
			chunks <- agent.CompletionChunk{Kind: agent.ChunkError, Err: p.wrapError(errors.New("anthropic stream error"), model)}
			return
		}

		if handled {
			emptyEvents = 0
		} else {
			emptyEvents++
			if emptyEvents >= maxEmptyStreamEvents {
				chunks <- agent.CompletionChunk{Kind: agent.ChunkError, Err: fmt.Errorf("anthropic: stream appears malformed after %d empty events", emptyEvents)}
				return
			}
		}
	}

	if err := stream.Err(); err != nil {
		chunks <- agent.CompletionChunk{Kind: agent.ChunkError, Err: p.wrapError(err, model)}
	}
}

func (p *AnthropicProvider) wrapError(err error, model string) error {
	perr := NewProviderError("anthropic", model, err)
	if perr.Reason == FailoverRateLimit {
		return &agent.ErrRateLimited{Provider: "anthropic", RetryAfter: p.retryDelay}
	}
	return perr
}

// convertMessagesAnthropic maps Sentinel's ordered-block message model
// onto Anthropic's content-block-array MessageParam. Tool results are
// Anthropic-role "user" turns carrying tool_result blocks, per the
// Messages API's convention of pairing a tool_use assistant turn with
// a following user turn of results.
func convertMessagesAnthropic(messages []*models.Message) ([]anthropic.MessageParam, error) {
	result := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case models.RoleUser:
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Text)))

		case models.RoleAssistant:
			var content []anthropic.ContentBlockParamUnion
			for _, b := range msg.Blocks {
				switch b.Kind {
				case models.BlockText:
					if b.Text != "" {
						content = append(content, anthropic.NewTextBlock(b.Text))
					}
				case models.BlockToolUse:
					var input map[string]any
					if len(b.ToolArgs) > 0 {
						if err := json.Unmarshal(b.ToolArgs, &input); err != nil {
							return nil, fmt.Errorf("tool args for %s: %w", b.ToolName, err)
						}
					}
					content = append(content, anthropic.NewToolUseBlock(b.ToolUseID, input, b.ToolName))
				}
			}
			result = append(result, anthropic.NewAssistantMessage(content...))

		case models.RoleTool:
			var content []anthropic.ContentBlockParamUnion
			for _, tr := range msg.ToolResults {
				content = append(content, anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
			}
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}
	return result, nil
}
