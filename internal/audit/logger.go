package audit

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/sentinel/internal/capability"
)

// Logger is the append-only audit sink. Writes are buffered and
// flushed from a single background goroutine so the hot path (a
// capability check, a tool call) does not block on sink I/O while the
// buffer has room; when the buffer is full, Log writes the event
// inline. Close
// drains the buffer before returning so no event is lost on a clean
// shutdown.
type Logger struct {
	output  io.Writer
	closer  io.Closer
	slogger *slog.Logger
	mirror  *slog.Logger

	path   string // empty unless Output was "file:<path>"; Rotate is a no-op otherwise
	format OutputFormat

	buffer    chan *Event
	done      chan struct{}
	rotateReq chan chan error
	wg        sync.WaitGroup
}

// NewLogger opens the sink described by config and starts its write
// loop. The caller must call Close to flush and release the
// underlying file handle.
func NewLogger(config Config) (*Logger, error) {
	if config.BufferSize == 0 {
		config.BufferSize = 256
	}
	if config.FlushInterval == 0 {
		config.FlushInterval = time.Second
	}
	if config.Format == "" {
		config.Format = FormatJSON
	}

	output, closer, err := openOutput(config.Output)
	if err != nil {
		return nil, err
	}

	l := &Logger{
		output:    output,
		closer:    closer,
		path:      filePath(config.Output),
		format:    config.Format,
		buffer:    make(chan *Event, config.BufferSize),
		done:      make(chan struct{}),
		rotateReq: make(chan chan error),
	}
	l.slogger = slog.New(newHandler(output, config.Format))
	if config.Mirror && output != os.Stderr {
		l.mirror = slog.New(newHandler(os.Stderr, config.Format))
	}

	l.wg.Add(1)
	go l.writeLoop(config.FlushInterval)

	return l, nil
}

func openOutput(spec string) (io.Writer, io.Closer, error) {
	switch {
	case spec == "" || spec == "stderr":
		return os.Stderr, nil, nil
	case spec == "stdout":
		return os.Stdout, nil, nil
	case strings.HasPrefix(spec, "file:"):
		path := strings.TrimPrefix(spec, "file:")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("audit: open %s: %w", path, err)
		}
		return f, f, nil
	default:
		return nil, nil, fmt.Errorf("audit: unsupported output %q", spec)
	}
}

// filePath returns the path openOutput would open for spec, or "" if
// spec doesn't name a file — the sentinel Rotate checks before acting.
func filePath(spec string) string {
	if strings.HasPrefix(spec, "file:") {
		return strings.TrimPrefix(spec, "file:")
	}
	return ""
}

func newHandler(w io.Writer, format OutputFormat) slog.Handler {
	if format == FormatText {
		return slog.NewTextHandler(w, nil)
	}
	return slog.NewJSONHandler(w, nil)
}

// Rotate closes the current file-backed sink, renames it aside with a
// timestamp suffix, and reopens a fresh file at the same path. It is a
// no-op for stdout/stderr sinks. Rotate is safe to call concurrently
// with Log: the actual swap happens on the write-loop goroutine, the
// same one that owns output/slogger, so no other event can interleave
// with a rotation in progress. This is the body the cron package's
// periodic audit-log-rotation task wraps as a TaskFunc.
func (l *Logger) Rotate() error {
	if l.path == "" {
		return nil
	}
	reply := make(chan error, 1)
	select {
	case l.rotateReq <- reply:
		return <-reply
	case <-l.done:
		return fmt.Errorf("audit: logger closed")
	}
}

// rotate runs only on the write-loop goroutine.
func (l *Logger) rotate() error {
	if closer, ok := l.closer.(*os.File); ok {
		rotatedPath := fmt.Sprintf("%s.%s", l.path, time.Now().UTC().Format("20060102T150405Z"))
		if err := closer.Close(); err != nil {
			return fmt.Errorf("audit: close current sink: %w", err)
		}
		if err := os.Rename(l.path, rotatedPath); err != nil {
			return fmt.Errorf("audit: rename %s: %w", l.path, err)
		}
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("audit: reopen %s: %w", l.path, err)
	}
	l.output = f
	l.closer = f
	l.slogger = slog.New(newHandler(f, l.format))
	return nil
}

// Close drains any buffered events and releases the sink.
func (l *Logger) Close() error {
	close(l.done)
	l.wg.Wait()
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

// Log records one audit event. Per spec.md §4.1/§4.5, every
// capability check and turn/tool/skill transition emits exactly one
// event before its result is returned — callers are expected to call
// this synchronously at that point; the write itself is what's
// buffered.
func (l *Logger) Log(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case l.buffer <- &event:
	default:
		// Buffer full: write inline rather than drop the event — the
		// audit trail must never silently lose a record.
		l.writeEvent(&event)
	}
}

func (l *Logger) writeLoop(flushInterval time.Duration) {
	defer l.wg.Done()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case event := <-l.buffer:
			l.writeEvent(event)
		case <-ticker.C:
			l.drain()
		case reply := <-l.rotateReq:
			l.drain()
			reply <- l.rotate()
		case <-l.done:
			l.drain()
			return
		}
	}
}

func (l *Logger) drain() {
	for {
		select {
		case event := <-l.buffer:
			l.writeEvent(event)
		default:
			return
		}
	}
}

func (l *Logger) writeEvent(event *Event) {
	attrs := []any{
		"event_kind", string(event.EventKind),
	}
	if event.Capability != "" {
		attrs = append(attrs, "capability", event.Capability)
	}
	if event.Resource != "" {
		attrs = append(attrs, "resource", event.Resource)
	}
	if event.Decision != "" {
		attrs = append(attrs, "decision", string(event.Decision))
	}
	if event.Reason != "" {
		attrs = append(attrs, "reason", event.Reason)
	}
	if event.TurnID != "" {
		attrs = append(attrs, "turn_id", event.TurnID)
	}
	if event.ToolUseID != "" {
		attrs = append(attrs, "tool_use_id", event.ToolUseID)
	}
	for k, v := range event.Details {
		attrs = append(attrs, k, v)
	}

	l.slogger.Info("audit", attrs...)
	if l.mirror != nil {
		l.mirror.Info("audit", attrs...)
	}
}

// CapabilityEventFunc satisfies capability.EventFunc so a Logger can
// be wired directly into capability.NewChecker — the checker stays
// unaware of the audit package, the dependency runs the other way.
func (l *Logger) CapabilityEventFunc(kind, resource string, decision capability.Decision) {
	outcome := DecisionDenied
	if decision.Allowed {
		outcome = DecisionAllowed
	}
	l.Log(Event{
		EventKind:  EventCapabilityCheck,
		Capability: kind,
		Resource:   resource,
		Decision:   outcome,
		Reason:     decision.Reason,
	})
}

// ToolInvoke records a tool (built-in or skill) being invoked.
func (l *Logger) ToolInvoke(turnID, toolUseID, toolName string) {
	l.Log(Event{
		EventKind: EventToolInvoke,
		TurnID:    turnID,
		ToolUseID: toolUseID,
		Details:   map[string]any{"tool_name": toolName},
	})
}

// ToolResult records a tool invocation's outcome.
func (l *Logger) ToolResult(turnID, toolUseID, toolName string, isError bool) {
	decision := DecisionAllowed
	if isError {
		decision = DecisionDenied
	}
	l.Log(Event{
		EventKind: EventToolResult,
		TurnID:    turnID,
		ToolUseID: toolUseID,
		Decision:  decision,
		Details:   map[string]any{"tool_name": toolName},
	})
}

// SkillLaunch records a skill subprocess being spawned for a turn.
func (l *Logger) SkillLaunch(turnID, skillName string) {
	l.Log(Event{
		EventKind: EventSkillLaunch,
		TurnID:    turnID,
		Details:   map[string]any{"skill": skillName},
	})
}

// SkillExit records a skill session's teardown, whatever the cause.
func (l *Logger) SkillExit(turnID, skillName, reason string) {
	l.Log(Event{
		EventKind: EventSkillExit,
		TurnID:    turnID,
		Reason:    reason,
		Details:   map[string]any{"skill": skillName},
	})
}

// TurnBegin records the start of a new turn.
func (l *Logger) TurnBegin(turnID string) {
	l.Log(Event{EventKind: EventTurnBegin, TurnID: turnID})
}

// TurnEnd records a turn completing normally.
func (l *Logger) TurnEnd(turnID string) {
	l.Log(Event{EventKind: EventTurnEnd, TurnID: turnID})
}

// TurnCancelled records a turn torn down mid-flight (spec.md §5's
// cancellation path).
func (l *Logger) TurnCancelled(turnID, reason string) {
	l.Log(Event{EventKind: EventTurnCancelled, TurnID: turnID, Reason: reason})
}
