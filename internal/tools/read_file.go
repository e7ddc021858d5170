package tools

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"

	"github.com/haasonsaas/sentinel/internal/capability"
	"github.com/haasonsaas/sentinel/internal/platform"
)

// DefaultMaxReadBytes is the read_file byte cap when none is
// configured (spec.md §4.2: "configurable byte limit, default 1 MiB").
const DefaultMaxReadBytes = 1 << 20

// ReadFileTool implements read_file against a capability-checked
// platform backend.
type ReadFileTool struct {
	checker      *capability.Checker
	backend      platform.Backend
	maxReadBytes int
}

// NewReadFileTool constructs a read_file tool. maxReadBytes <= 0 uses
// DefaultMaxReadBytes.
func NewReadFileTool(checker *capability.Checker, backend platform.Backend, maxReadBytes int) *ReadFileTool {
	if maxReadBytes <= 0 {
		maxReadBytes = DefaultMaxReadBytes
	}
	return &ReadFileTool{checker: checker, backend: backend, maxReadBytes: maxReadBytes}
}

func (t *ReadFileTool) Name() string { return "read_file" }

func (t *ReadFileTool) Description() string {
	return "Read a file's contents, capped at a configured byte limit."
}

func (t *ReadFileTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "path": {"type": "string", "description": "Absolute or workspace-relative path to read."}
  },
  "required": ["path"]
}`)
}

func (t *ReadFileTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var input struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult(KindInvalid, err.Error()), nil
	}
	if strings.TrimSpace(input.Path) == "" {
		return errResult(KindInvalid, "path is required"), nil
	}

	decision := t.checker.CheckRead(input.Path)
	if !decision.Allowed {
		return errResult(KindDenied, "read denied: "+decision.Reason), nil
	}

	content, truncated, err := t.backend.ReadFile(ctx, input.Path, 0, t.maxReadBytes)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return errResult(KindNotFound, err.Error()), nil
		}
		return errResult(KindIO, err.Error()), nil
	}

	return ok(map[string]any{
		"path":      input.Path,
		"content":   string(content),
		"bytes":     len(content),
		"truncated": truncated,
	})
}
