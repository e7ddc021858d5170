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

// ListDirectoryTool implements list_directory: a single, non-recursive
// listing of names and kinds.
type ListDirectoryTool struct {
	checker *capability.Checker
	backend platform.Backend
}

func NewListDirectoryTool(checker *capability.Checker, backend platform.Backend) *ListDirectoryTool {
	return &ListDirectoryTool{checker: checker, backend: backend}
}

func (t *ListDirectoryTool) Name() string { return "list_directory" }

func (t *ListDirectoryTool) Description() string {
	return "List the immediate entries of a directory (not recursive)."
}

func (t *ListDirectoryTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "path": {"type": "string", "description": "Absolute or workspace-relative directory path."}
  },
  "required": ["path"]
}`)
}

func (t *ListDirectoryTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
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

	entries, err := t.backend.ListDirectory(ctx, input.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return errResult(KindNotFound, err.Error()), nil
		}
		return errResult(KindIO, err.Error()), nil
	}

	return ok(map[string]any{
		"path":    input.Path,
		"entries": entries,
	})
}
