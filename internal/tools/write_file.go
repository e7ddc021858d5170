package tools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/haasonsaas/sentinel/internal/capability"
	"github.com/haasonsaas/sentinel/internal/platform"
)

// DefaultMaxWriteBytes bounds write_file's content size.
const DefaultMaxWriteBytes = 10 << 20

// WriteFileTool implements write_file: atomic write-to-temp-then-rename
// through the platform backend, gated by a write-path capability check.
type WriteFileTool struct {
	checker       *capability.Checker
	backend       platform.Backend
	maxWriteBytes int
}

// NewWriteFileTool constructs a write_file tool. maxWriteBytes <= 0
// uses DefaultMaxWriteBytes.
func NewWriteFileTool(checker *capability.Checker, backend platform.Backend, maxWriteBytes int) *WriteFileTool {
	if maxWriteBytes <= 0 {
		maxWriteBytes = DefaultMaxWriteBytes
	}
	return &WriteFileTool{checker: checker, backend: backend, maxWriteBytes: maxWriteBytes}
}

func (t *WriteFileTool) Name() string { return "write_file" }

func (t *WriteFileTool) Description() string {
	return "Write content to a file atomically, creating it if absent."
}

func (t *WriteFileTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "path": {"type": "string", "description": "Absolute or workspace-relative path to write."},
    "content": {"type": "string", "description": "Full file content to write."}
  },
  "required": ["path", "content"]
}`)
}

func (t *WriteFileTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var input struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult(KindInvalid, err.Error()), nil
	}
	if strings.TrimSpace(input.Path) == "" {
		return errResult(KindInvalid, "path is required"), nil
	}
	if len(input.Content) > t.maxWriteBytes {
		return errResult(KindTooLarge, "content exceeds write limit"), nil
	}

	decision := t.checker.CheckWrite(input.Path)
	if !decision.Allowed {
		return errResult(KindDenied, "write denied: "+decision.Reason), nil
	}

	// The target itself is already inside a write prefix, so every
	// ancestor up to that prefix is too — safe to create without a
	// second capability check per directory level.
	if err := t.backend.EnsureDir(ctx, filepath.Dir(input.Path)); err != nil {
		return errResult(KindIO, err.Error()), nil
	}

	if err := t.backend.WriteFileAtomic(ctx, input.Path, []byte(input.Content)); err != nil {
		return errResult(KindIO, err.Error()), nil
	}

	return ok(map[string]any{
		"path":  input.Path,
		"bytes": len(input.Content),
	})
}
