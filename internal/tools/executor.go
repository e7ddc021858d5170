// Package tools implements Sentinel's four built-in tools (read_file,
// write_file, list_directory, run_command). Every tool checks the
// active capability grant before touching the platform backend, and
// every failure is reported as a structured tool_result rather than
// a Go error — a tool either succeeds or returns Err(kind, message),
// and the turn continues either way (spec.md §4.2).
package tools

import (
	"context"
	"encoding/json"
)

type turnIDContextKey struct{}

// WithTurnID attaches the orchestrator's turn identifier to ctx so a
// ToolDispatcher implementation can tag the events it emits without
// widening the Dispatch signature or importing the agent package.
func WithTurnID(ctx context.Context, turnID string) context.Context {
	return context.WithValue(ctx, turnIDContextKey{}, turnID)
}

// TurnIDFromContext retrieves the turn identifier attached by
// WithTurnID, if any.
func TurnIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(turnIDContextKey{}).(string)
	return id, ok
}

// Tool is one built-in, fixed-schema capability the LLM can invoke.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, params json.RawMessage) (*Result, error)
}

// ErrorKind classifies a non-fatal tool failure, surfaced to the LLM
// in Result.Kind so it can decide how to react (retry with a
// different path, give up, report to the user).
type ErrorKind string

const (
	KindDenied      ErrorKind = "denied"
	KindNotFound    ErrorKind = "not_found"
	KindIO          ErrorKind = "io"
	KindTooLarge    ErrorKind = "too_large"
	KindSpawn       ErrorKind = "spawn"
	KindTimeout     ErrorKind = "timeout"
	KindNonZeroExit ErrorKind = "nonzero_exit"
	KindInvalid     ErrorKind = "invalid_argument"
)

// Result is the structured outcome of one tool invocation. Content is
// always a JSON document (success payload or {"kind","message"} on
// error) so the orchestrator can serialize it into a tool_result
// content block without re-encoding.
type Result struct {
	Content string
	IsError bool
}

// ok builds a successful Result from a JSON-able payload.
func ok(payload any) (*Result, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return errResult(KindIO, err.Error()), nil
	}
	return &Result{Content: string(data)}, nil
}

// errResult builds a non-fatal error Result. Tool methods always
// return (*Result, nil) for these — the error return is reserved for
// truly unrecoverable situations (e.g. a canceled context), which the
// orchestrator treats as a fatal round abort rather than a reportable
// tool failure.
func errResult(kind ErrorKind, message string) *Result {
	data, err := json.Marshal(map[string]string{"kind": string(kind), "message": message})
	if err != nil {
		return &Result{Content: message, IsError: true}
	}
	return &Result{Content: string(data), IsError: true}
}

// Registry holds the fixed set of built-in tools keyed by name.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry builds a registry over the four built-ins.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.tools[t.Name()] = t
	}
	return r
}

// Lookup returns the named tool, or false if it is not a registered
// built-in (the skill runner handles everything else).
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Schemas returns every tool's name, description, and parameter
// schema, in the shape the LLM provider layer converts into its own
// tool-definition wire format.
func (r *Registry) Schemas() []Definition {
	defs := make([]Definition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, Definition{Name: t.Name(), Description: t.Description(), Schema: t.Schema()})
	}
	return defs
}

// Definition is a tool's LLM-facing metadata.
type Definition struct {
	Name        string
	Description string
	Schema      json.RawMessage
}
