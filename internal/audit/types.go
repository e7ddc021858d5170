// Package audit implements Sentinel's append-only audit sink (spec.md
// §4.5): one structured line per capability check, tool invocation,
// skill lifecycle transition, and turn boundary, written before the
// operation's result is returned to its caller.
package audit

import "time"

// EventKind categorizes an audit event. These are the exact kinds
// spec.md §6 names — no others are emitted.
type EventKind string

const (
	EventCapabilityCheck EventKind = "capability_check"
	EventToolInvoke      EventKind = "tool_invoke"
	EventToolResult      EventKind = "tool_result"
	EventSkillLaunch     EventKind = "skill_launch"
	EventSkillExit       EventKind = "skill_exit"
	EventTurnBegin       EventKind = "turn_begin"
	EventTurnEnd         EventKind = "turn_end"
	EventTurnCancelled   EventKind = "turn_cancelled"
)

// Decision is the outcome recorded for a capability_check event.
type Decision string

const (
	DecisionAllowed Decision = "allowed"
	DecisionDenied  Decision = "denied"
)

// Event is the immutable record spec.md §3 describes: exactly one per
// capability check, with the fields every other event kind also
// shares (timestamp, turn/tool correlation) plus a free-form Details
// map for the fields particular to that event kind (e.g. a
// tool_invoke event's arguments, a skill_launch event's manifest
// name).
type Event struct {
	Timestamp  time.Time      `json:"timestamp"`
	EventKind  EventKind      `json:"event_kind"`
	Capability string         `json:"capability,omitempty"`
	Resource   string         `json:"resource,omitempty"`
	Decision   Decision       `json:"decision,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	TurnID     string         `json:"turn_id,omitempty"`
	ToolUseID  string         `json:"tool_use_id,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// OutputFormat selects how events are rendered to the sink.
type OutputFormat string

const (
	FormatJSON OutputFormat = "json"
	FormatText OutputFormat = "text"
)

// Config configures the audit Logger.
type Config struct {
	// Output selects the sink destination: "stdout", "stderr", or
	// "file:/path/to/audit.log" (opened append-only).
	Output string `yaml:"output"`

	// Format selects the line encoding. Default: json.
	Format OutputFormat `yaml:"format"`

	// Mirror additionally writes every event to stderr even when
	// Output names a file — useful when running under a supervisor
	// that captures stderr.
	Mirror bool `yaml:"mirror"`

	// BufferSize is the async write buffer's capacity. Default: 256.
	BufferSize int `yaml:"buffer_size"`

	// FlushInterval bounds how long a buffered event can wait before
	// being flushed even absent new events. Default: 1s.
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// DefaultConfig returns the audit sink's default configuration.
func DefaultConfig() Config {
	return Config{
		Output:        "stderr",
		Format:        FormatJSON,
		BufferSize:    256,
		FlushInterval: time.Second,
	}
}
