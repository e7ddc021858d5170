package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/sentinel/internal/agent"
	"github.com/haasonsaas/sentinel/internal/agent/toolconv"
	"github.com/haasonsaas/sentinel/pkg/models"
)

// OpenAIConfig configures OpenAIProvider.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	MaxRetries   int
	RetryDelay   time.Duration
	DefaultModel string
}

// OpenAIProvider implements agent.LLMProvider over the chat completions
// streaming API.
type OpenAIProvider struct {
	BaseProvider
	client       *openai.Client
	defaultModel string
}

// NewOpenAIProvider constructs a provider from config.
func NewOpenAIProvider(config OpenAIConfig) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "gpt-4o"
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if strings.TrimSpace(config.BaseURL) != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIProvider{
		BaseProvider: NewBaseProvider("openai", config.MaxRetries, config.RetryDelay),
		client:       openai.NewClientWithConfig(clientConfig),
		defaultModel: config.DefaultModel,
	}, nil
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) model(requested string) string {
	if requested != "" {
		return requested
	}
	return p.defaultModel
}

// Complete streams a completion, retrying stream-creation failures with
// the BaseProvider's linear backoff; once a stream has started,
// mid-stream errors are surfaced as a terminal ChunkError rather than
// retried, since partial output has already been produced.
func (p *OpenAIProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan agent.CompletionChunk, error) {
	chunks := make(chan agent.CompletionChunk)

	go func() {
		defer close(chunks)

		var stream *openai.ChatCompletionStream
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

func (p *OpenAIProvider) createStream(ctx context.Context, req *agent.CompletionRequest) (*openai.ChatCompletionStream, error) {
	messages := convertMessagesOpenAI(req.Messages, req.System)

	chatReq := openai.ChatCompletionRequest{
		Model:     p.model(req.Model),
		Messages:  messages,
		MaxTokens: agent.MaxTokensOrDefault(req.MaxTokens),
		Stream:    true,
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = toolconv.ToOpenAITools(req.Tools)
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("openai: create stream: %w", err)
	}
	return stream, nil
}

// pendingToolCall accumulates one tool call's fields across however
// many stream deltas it takes to deliver them; OpenAI sends the
// function name once and the argument JSON in fragments.
type pendingToolCall struct {
	id   string
	name string
	args strings.Builder
}

func (p *OpenAIProvider) processStream(stream *openai.ChatCompletionStream, chunks chan<- agent.CompletionChunk, model string) {
	defer stream.Close()

	calls := make(map[int]*pendingToolCall)
	order := make([]int, 0, 4)
	stopReason := agent.StopEndTurn

	emitToolUse := func() {
		for _, idx := range order {
			pc := calls[idx]
			if pc == nil || pc.id == "" || pc.name == "" {
				continue
			}
			block := models.ToolUseBlock(pc.id, pc.name, json.RawMessage(pc.args.String()))
			chunks <- agent.CompletionChunk{Kind: agent.ChunkToolUse, ToolUse: &block}
		}
		calls = make(map[int]*pendingToolCall)
		order = order[:0]
	}

	for {
		response, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				emitToolUse()
				chunks <- agent.CompletionChunk{Kind: agent.ChunkDone, StopReason: stopReason}
				return
			}
			chunks <- agent.CompletionChunk{Kind: agent.ChunkError, Err: p.wrapError(err, model)}
			return
		}

		if len(response.Choices) == 0 {
			continue
		}
		choice := response.Choices[0]
		delta := choice.Delta

		if delta.Content != "" {
			chunks <- agent.CompletionChunk{Kind: agent.ChunkText, TextDelta: delta.Content}
		}

		for _, tc := range delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			pc, ok := calls[index]
			if !ok {
				pc = &pendingToolCall{}
				calls[index] = pc
				order = append(order, index)
			}
			if tc.ID != "" {
				pc.id = tc.ID
			}
			if tc.Function.Name != "" {
				pc.name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				pc.args.WriteString(tc.Function.Arguments)
			}
		}

		switch choice.FinishReason {
		case "tool_calls":
			stopReason = agent.StopToolUse
			emitToolUse()
		case "length":
			stopReason = agent.StopMaxTokens
		case "stop":
			stopReason = agent.StopEndTurn
		}
	}
}

func (p *OpenAIProvider) wrapError(err error, model string) error {
	perr := NewProviderError("openai", model, err)
	if perr.Reason == FailoverRateLimit {
		return &agent.ErrRateLimited{Provider: "openai", RetryAfter: p.retryDelay}
	}
	return perr
}

// convertMessagesOpenAI maps Sentinel's ordered-block message model
// onto OpenAI's flat chat-message list. An assistant message's
// ToolUse blocks become one ChatCompletionMessage carrying ToolCalls;
// a following tool message expands into one role=tool message per
// result, since the API does not accept a batched form.
func convertMessagesOpenAI(messages []*models.Message, system string) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)

	if system != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, msg := range messages {
		switch msg.Role {
		case models.RoleUser:
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Text,
			})

		case models.RoleAssistant:
			oaiMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant}
			for _, b := range msg.Blocks {
				switch b.Kind {
				case models.BlockText:
					oaiMsg.Content += b.Text
				case models.BlockToolUse:
					oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
						ID:   b.ToolUseID,
						Type: openai.ToolTypeFunction,
						Function: openai.FunctionCall{
							Name:      b.ToolName,
							Arguments: string(b.ToolArgs),
						},
					})
				}
			}
			result = append(result, oaiMsg)

		case models.RoleTool:
			for _, tr := range msg.ToolResults {
				result = append(result, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    tr.Content,
					ToolCallID: tr.ToolCallID,
				})
			}
		}
	}

	return result
}
