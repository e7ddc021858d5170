package connector

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/sentinel/internal/agent"
	"github.com/haasonsaas/sentinel/internal/capability"
	"github.com/haasonsaas/sentinel/internal/conversation"
	"github.com/haasonsaas/sentinel/internal/observability"
	"github.com/haasonsaas/sentinel/pkg/models"
)

// clearCommand is the literal inbound text that resets a conversation
// (spec.md §3-iii, §4.6).
const clearCommand = "/clear"

// Registry holds every configured connector and drives spec.md §4.6's
// dispatch loop: poll each connector in round-robin, and for every
// incoming message check allowed_users, handle /clear, or hand the
// text to the orchestrator — grounded on the teacher's round-robin
// selection counter (internal/edge/router.go's StrategyRoundRobin)
// narrowed from "pick one backend per call" to "visit every connector
// once per cycle".
type Registry struct {
	connectors []Connector
	dispatcher *agent.Dispatcher
	store      conversation.Store
	checker    *capability.Checker
	logger     *slog.Logger
	metrics    *observability.Metrics
	tracer     *observability.Tracer
}

// NewRegistry builds a Registry over the given connectors.
func NewRegistry(connectors []Connector, dispatcher *agent.Dispatcher, store conversation.Store, checker *capability.Checker, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		connectors: connectors,
		dispatcher: dispatcher,
		store:      store,
		checker:    checker,
		logger:     logger.With("component", "connector"),
	}
}

// WithObservability attaches metrics and tracing, both optional —
// either argument may be nil, in which case that signal is skipped.
// Returns r so it can be chained onto NewRegistry.
func (r *Registry) WithObservability(metrics *observability.Metrics, tracer *observability.Tracer) *Registry {
	r.metrics = metrics
	r.tracer = tracer
	return r
}

// Run polls every connector once per cycle, round-robin, until ctx is
// canceled. A connector's own PollMessages is expected to long-poll or
// otherwise pace itself; Run does not add its own delay between
// cycles.
func (r *Registry) Run(ctx context.Context) error {
	if len(r.connectors) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	for {
		for _, c := range r.connectors {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			r.pollOne(ctx, c)
		}
	}
}

func (r *Registry) pollOne(ctx context.Context, c Connector) {
	msgs, err := c.PollMessages(ctx)
	if err != nil {
		r.logger.Error("poll failed", "platform", c.PlatformName(), "error", err)
		return
	}
	for _, msg := range msgs {
		r.handle(ctx, c, msg)
	}
}

func (r *Registry) handle(ctx context.Context, c Connector, msg IncomingMessage) {
	platform := models.Platform(c.PlatformName())
	key := models.ConversationKey{Platform: platform, ChatID: msg.ChatID}

	if r.metrics != nil {
		r.metrics.MessageReceived(string(platform))
	}
	if r.tracer != nil {
		var span trace.Span
		ctx, span = r.tracer.TraceMessageProcessing(ctx, string(platform), "inbound", msg.ChatID)
		defer span.End()
	}

	if decision := r.checker.CheckUser(msg.UserID); !decision.Allowed {
		r.logger.Warn("user denied", "platform", c.PlatformName(), "user_id", msg.UserID, "reason", decision.Reason)
		return
	}

	if strings.TrimSpace(msg.Text) == clearCommand {
		if err := r.store.Clear(ctx, key); err != nil {
			r.logger.Error("clear failed", "platform", c.PlatformName(), "chat_id", msg.ChatID, "error", err)
			return
		}
		if err := c.SendMessage(ctx, msg.ChatID, "Conversation cleared."); err != nil {
			r.logger.Error("send failed", "platform", c.PlatformName(), "chat_id", msg.ChatID, "error", err)
		}
		return
	}

	reply, err := r.dispatcher.RunTurn(ctx, key, msg.Text)
	if err != nil {
		r.logger.Error("turn failed", "platform", c.PlatformName(), "chat_id", msg.ChatID, "error", err)
		return
	}
	if reply == "" {
		return
	}
	if err := c.SendMessage(ctx, msg.ChatID, reply); err != nil {
		r.logger.Error("send failed", "platform", c.PlatformName(), "chat_id", msg.ChatID, "error", err)
		return
	}
	if r.metrics != nil {
		r.metrics.MessageSent(string(platform))
	}
}
