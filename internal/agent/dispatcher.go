package agent

import (
	"context"
	"sync"

	"github.com/haasonsaas/sentinel/pkg/models"
)

// Dispatcher serializes turns across every conversation behind one
// mutex, implementing spec.md §5's "single-threaded cooperative
// model: one turn at a time, globally" — narrowed from nexus's
// internal/sessions/locker.go per-session lock (which lets different
// sessions run concurrently) to a single global lock, since the spec
// explicitly rejects cross-conversation overlap as offering no
// throughput benefit in this design.
type Dispatcher struct {
	mu           sync.Mutex
	orchestrator *Orchestrator
}

// NewDispatcher wraps orchestrator with global turn serialization.
func NewDispatcher(orchestrator *Orchestrator) *Dispatcher {
	return &Dispatcher{orchestrator: orchestrator}
}

// RunTurn acquires the global turn lock, runs the turn, and releases
// it — the lock is held for the LLM round-trips and tool execution,
// not just the state mutation, since spec.md §5 calls for one turn at
// a time, not merely one state update at a time.
func (d *Dispatcher) RunTurn(ctx context.Context, key models.ConversationKey, userText string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.orchestrator.RunTurn(ctx, key, userText)
}
