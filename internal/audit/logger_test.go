package audit

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/haasonsaas/sentinel/internal/capability"
)

// threadSafeBuffer lets concurrent writers share one in-memory sink.
type threadSafeBuffer struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (b *threadSafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *threadSafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestNewLoggerOutputDestinations(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		wantErr bool
	}{
		{name: "stdout", output: "stdout"},
		{name: "empty defaults to stderr", output: ""},
		{name: "stderr", output: "stderr"},
		{name: "unsupported scheme", output: "ftp://invalid", wantErr: true},
		{name: "file with invalid path", output: "file:/nonexistent/dir/that/should/not/exist/audit.log", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(Config{Output: tt.output})
			if tt.wantErr {
				if err == nil {
					t.Error("expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			defer logger.Close()
		})
	}
}

func TestNewLoggerFileOutput(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "audit.log")

	logger, err := NewLogger(Config{
		Output: "file:" + logPath,
		Format: FormatJSON,
	})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	logger.Log(Event{EventKind: EventTurnBegin, TurnID: "turn-1"})

	if err := logger.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}

	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		t.Error("log file was not created")
	}
}

func TestNewLoggerAppliesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "defaults.log")

	logger, err := NewLogger(Config{Output: "file:" + logPath})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer logger.Close()

	if cap(logger.buffer) != 256 {
		t.Errorf("expected default buffer size 256, got %d", cap(logger.buffer))
	}
}

func TestLoggerLogWritesEvent(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "write.log")

	logger, err := NewLogger(Config{
		Output:        "file:" + logPath,
		Format:        FormatJSON,
		FlushInterval: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	logger.Log(Event{
		EventKind:  EventCapabilityCheck,
		Capability: "read",
		Resource:   "/tmp/x",
		Decision:   DecisionDenied,
		Reason:     "outside_grant",
	})

	time.Sleep(100 * time.Millisecond)
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	content := string(data)
	for _, want := range []string{"capability_check", "read", "/tmp/x", "denied", "outside_grant"} {
		if !strings.Contains(content, want) {
			t.Errorf("expected log line to contain %q, got %q", want, content)
		}
	}
}

func TestLoggerBufferFullFallsBackToSyncWrite(t *testing.T) {
	buf := &threadSafeBuffer{}
	l := &Logger{
		output:  buf,
		slogger: slog.New(newHandler(buf, FormatJSON)),
		buffer:  make(chan *Event, 1),
		done:    make(chan struct{}),
	}
	l.wg.Add(1)
	go l.writeLoop(time.Hour) // never ticks during the test

	// Fill and exceed the buffer; none of these calls should block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			l.Log(Event{EventKind: EventTurnBegin, TurnID: "t"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Log() blocked when buffer was full")
	}

	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if buf.String() == "" {
		t.Error("expected events to have been written despite a full buffer")
	}
}

func TestLoggerClosesDrainsBuffer(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "drain.log")

	logger, err := NewLogger(Config{
		Output:        "file:" + logPath,
		BufferSize:    1000,
		FlushInterval: 10 * time.Second, // long enough that only Close flushes
	})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	for i := 0; i < 20; i++ {
		logger.Log(Event{EventKind: EventTurnEnd, TurnID: "t"})
	}

	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 20 {
		t.Errorf("expected 20 log lines after Close drained the buffer, got %d", len(lines))
	}
}

func TestLoggerMirrorWritesToStderrAndFile(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "mirror.log")

	logger, err := NewLogger(Config{
		Output:        "file:" + logPath,
		Mirror:        true,
		FlushInterval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if logger.mirror == nil {
		t.Fatal("expected mirror logger to be set when Mirror is true and output is a file")
	}
	logger.Close()
}

func TestLoggerCapabilityEventFunc(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "capability.log")

	logger, err := NewLogger(Config{Output: "file:" + logPath, FlushInterval: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	logger.CapabilityEventFunc("net", "api.example.com:443", capability.Allowed())
	logger.CapabilityEventFunc("command", "rm", capability.Denied("not_in_grant"))

	time.Sleep(50 * time.Millisecond)
	logger.Close()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, `"decision":"allowed"`) {
		t.Errorf("expected an allowed decision in %q", content)
	}
	if !strings.Contains(content, `"decision":"denied"`) {
		t.Errorf("expected a denied decision in %q", content)
	}
	if !strings.Contains(content, "not_in_grant") {
		t.Errorf("expected denial reason in %q", content)
	}
}

func TestLoggerConvenienceMethods(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "convenience.log")

	logger, err := NewLogger(Config{Output: "file:" + logPath, FlushInterval: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	logger.TurnBegin("turn-1")
	logger.ToolInvoke("turn-1", "tool-use-1", "read_file")
	logger.ToolResult("turn-1", "tool-use-1", "read_file", false)
	logger.SkillLaunch("turn-1", "weather")
	logger.SkillExit("turn-1", "weather", "completed")
	logger.TurnEnd("turn-1")
	logger.TurnCancelled("turn-2", "context_deadline_exceeded")

	time.Sleep(50 * time.Millisecond)
	logger.Close()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	content := string(data)
	for _, want := range []string{
		"turn_begin", "tool_invoke", "tool_result", "skill_launch",
		"skill_exit", "turn_end", "turn_cancelled", "read_file", "weather",
		"context_deadline_exceeded",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("expected %q in audit log, got %q", want, content)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Output != "stderr" {
		t.Errorf("expected default output stderr, got %q", cfg.Output)
	}
	if cfg.Format != FormatJSON {
		t.Errorf("expected default format json, got %q", cfg.Format)
	}
	if cfg.BufferSize != 256 {
		t.Errorf("expected default buffer size 256, got %d", cfg.BufferSize)
	}
	if cfg.FlushInterval != time.Second {
		t.Errorf("expected default flush interval 1s, got %v", cfg.FlushInterval)
	}
}

func TestEventMarshaling(t *testing.T) {
	event := Event{
		Timestamp: time.Now(),
		EventKind: EventToolInvoke,
		TurnID:    "turn-1",
		ToolUseID: "tool-use-1",
		Details:   map[string]any{"tool_name": "read_file"},
	}

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded Event
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.EventKind != event.EventKind {
		t.Errorf("EventKind mismatch: got %s, want %s", decoded.EventKind, event.EventKind)
	}
	if decoded.TurnID != event.TurnID {
		t.Errorf("TurnID mismatch: got %s, want %s", decoded.TurnID, event.TurnID)
	}
	if decoded.Details["tool_name"] != "read_file" {
		t.Error("expected tool_name to round-trip through Details")
	}
}

func TestLoggerRotateRenamesCurrentFileAndContinuesWriting(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "audit.log")

	logger, err := NewLogger(Config{Output: "file:" + logPath, FlushInterval: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer logger.Close()

	logger.Log(Event{EventKind: EventTurnBegin, TurnID: "before-rotate"})
	time.Sleep(30 * time.Millisecond)

	if err := logger.Rotate(); err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	logger.Log(Event{EventKind: EventTurnBegin, TurnID: "after-rotate"})
	time.Sleep(30 * time.Millisecond)

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	var sawRotated, sawCurrent bool
	for _, e := range entries {
		switch {
		case e.Name() == "audit.log":
			sawCurrent = true
		case strings.HasPrefix(e.Name(), "audit.log."):
			sawRotated = true
		}
	}
	if !sawRotated {
		t.Error("expected the pre-rotation file to be renamed aside")
	}
	if !sawCurrent {
		t.Error("expected a fresh audit.log to exist after rotation")
	}

	current, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("ReadFile current: %v", err)
	}
	if !strings.Contains(string(current), "after-rotate") {
		t.Error("expected the post-rotation write to land in the new file")
	}
	if strings.Contains(string(current), "before-rotate") {
		t.Error("expected the pre-rotation event not to appear in the new file")
	}
}

func TestLoggerRotateIsNoopForStderrSink(t *testing.T) {
	logger, err := NewLogger(Config{Output: "stderr"})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer logger.Close()

	if err := logger.Rotate(); err != nil {
		t.Errorf("expected Rotate to be a no-op for a non-file sink, got %v", err)
	}
}
