package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/haasonsaas/sentinel/internal/capability"
	"github.com/haasonsaas/sentinel/internal/platform"
)

// RunCommandTool implements run_command: a capability-checked spawn
// with a cleared environment and the grant's command_timeout enforced
// by the backend's terminate-then-kill sequence.
type RunCommandTool struct {
	checker   *capability.Checker
	backend   platform.Backend
	workspace string
}

func NewRunCommandTool(checker *capability.Checker, backend platform.Backend, workspace string) *RunCommandTool {
	return &RunCommandTool{checker: checker, backend: backend, workspace: workspace}
}

func (t *RunCommandTool) Name() string { return "run_command" }

func (t *RunCommandTool) Description() string {
	return "Spawn an allowlisted command with a cleared environment and bounded timeout."
}

func (t *RunCommandTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "name": {"type": "string", "description": "Command basename, e.g. \"ls\"."},
    "args": {"type": "array", "items": {"type": "string"}, "description": "Positional arguments; flags beginning with - are rejected."}
  },
  "required": ["name"]
}`)
}

func (t *RunCommandTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var input struct {
		Name string   `json:"name"`
		Args []string `json:"args"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult(KindInvalid, err.Error()), nil
	}
	if strings.TrimSpace(input.Name) == "" {
		return errResult(KindInvalid, "name is required"), nil
	}

	decision := t.checker.CheckCommand(input.Name, input.Args)
	if !decision.Allowed {
		return errResult(KindDenied, "command denied: "+decision.Reason), nil
	}

	handle, err := t.backend.SpawnCommand(ctx, platform.CommandSpec{
		Name:    input.Name,
		Args:    input.Args,
		Dir:     t.workspace,
		Timeout: t.checker.CommandTimeout(),
	})
	if err != nil {
		return errResult(KindSpawn, err.Error()), nil
	}

	if handle.TimedOut {
		return errResult(KindTimeout, "command exceeded command_timeout"), nil
	}

	result := map[string]any{
		"stdout":    handle.Stdout,
		"stderr":    handle.Stderr,
		"exit_code": handle.ExitCode,
	}
	if handle.ExitCode != 0 {
		result["kind"] = string(KindNonZeroExit)
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return errResult(KindIO, err.Error()), nil
		}
		return &Result{Content: string(data), IsError: true}, nil
	}
	return ok(result)
}
