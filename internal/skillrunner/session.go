package skillrunner

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/haasonsaas/sentinel/internal/tools"
)

// request is the outbound frame of the skill IPC protocol (spec.md
// §6): {"id": <uint>, "tool": <str>, "args": <object>}.
type request struct {
	ID   uint64          `json:"id"`
	Tool string          `json:"tool"`
	Args json.RawMessage `json:"args"`
}

// reply is the inbound frame: either a result or an error, never
// both. result is left as json.RawMessage so the caller can hand it
// straight to the orchestrator as tool_result content.
type reply struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *replyError     `json:"error"`
}

type replyError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// session is one warm skill subprocess, reused for every invocation of
// its skill within a turn (spec.md §4.3 Lifecycle) and torn down at
// turn end or on protocol violation.
type session struct {
	manifest *Manifest
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	stdout   *bufio.Scanner
	stderr   io.ReadCloser
	nextID   atomic.Uint64
	dead     bool
}

// startSession launches manifest's executable with a cleared
// environment, stdin/stdout/stderr piped, and the working directory
// set to its scratch area — grounded on mcp/transport_stdio.go's
// Connect, narrowed from a long-lived JSON-RPC connection to this
// package's simpler one-request-in-flight protocol since the turn
// orchestrator invokes tools strictly in order (spec.md §4.4c).
func startSession(ctx context.Context, manifest *Manifest, scratchRoot string) (*session, error) {
	scratchDir := filepath.Join(scratchRoot, manifest.Name)
	if err := os.MkdirAll(scratchDir, 0o700); err != nil {
		return nil, fmt.Errorf("skillrunner: create scratch dir: %w", err)
	}

	cmd := exec.CommandContext(ctx, manifest.ResolvedExecutable())
	cmd.Dir = scratchDir
	cmd.Env = []string{} // cleared, no allowlist — spec.md §4.3 Launch

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("skillrunner: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("skillrunner: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("skillrunner: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("skillrunner: start skill %q: %w", manifest.Name, err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	s := &session{manifest: manifest, cmd: cmd, stdin: stdin, stdout: scanner, stderr: stderr}
	return s, nil
}

// kill terminates the subprocess unconditionally. Safe to call more
// than once; guaranteed teardown on every exit path per spec.md §3's
// Skill session lifecycle invariant.
func (s *session) kill() {
	if s.dead {
		return
	}
	s.dead = true
	s.stdin.Close()
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.cmd.Wait()
}

// invoke sends one request and waits for its matching reply, subject
// to deadline. Any deviation from the wire protocol — non-JSON line,
// id mismatch, stdout EOF before a reply arrives — kills the session
// and returns a *SkillProtocolError; Runner.Dispatch returns it as is,
// and the orchestrator turns it into an is_error tool result of kind
// internal before it reaches the LLM.
func (s *session) invoke(ctx context.Context, toolName string, args json.RawMessage, deadline time.Duration) (*tools.Result, error) {
	if s.dead {
		return nil, fmt.Errorf("skillrunner: session already dead")
	}

	id := s.nextID.Add(1)
	req := request{ID: id, Tool: toolName, Args: args}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("skillrunner: marshal request: %w", err)
	}
	if _, err := s.stdin.Write(append(data, '\n')); err != nil {
		s.kill()
		return nil, fmt.Errorf("skillrunner: write request: %w", err)
	}

	type scanResult struct {
		line string
		ok   bool
		err  error
	}
	lines := make(chan scanResult, 1)
	go func() {
		ok := s.stdout.Scan()
		lines <- scanResult{line: s.stdout.Text(), ok: ok, err: s.stdout.Err()}
	}()

	if deadline <= 0 {
		deadline = 30 * time.Second
	}

	select {
	case <-ctx.Done():
		s.kill()
		return nil, ctx.Err()
	case <-time.After(deadline):
		s.kill()
		return timeoutResult(), nil
	case sr := <-lines:
		if sr.err != nil {
			s.kill()
			return nil, &SkillProtocolError{SkillName: s.manifest.Name, Message: "stdout scanner error: " + sr.err.Error()}
		}
		if !sr.ok {
			s.kill()
			return nil, &SkillProtocolError{SkillName: s.manifest.Name, Message: "stdout EOF with no reply"}
		}

		var resp reply
		if err := json.Unmarshal([]byte(sr.line), &resp); err != nil {
			s.kill()
			return nil, &SkillProtocolError{SkillName: s.manifest.Name, Message: "non-JSON line: " + sr.line}
		}
		if resp.ID != id {
			s.kill()
			return nil, &SkillProtocolError{SkillName: s.manifest.Name, Message: fmt.Sprintf("id mismatch: expected %d, got %d", id, resp.ID)}
		}
		if resp.Error != nil {
			data, _ := json.Marshal(map[string]string{"kind": resp.Error.Kind, "message": resp.Error.Message})
			return &tools.Result{Content: string(data), IsError: true}, nil
		}
		return &tools.Result{Content: string(resp.Result)}, nil
	}
}

func timeoutResult() *tools.Result {
	data, _ := json.Marshal(map[string]string{"kind": string(tools.KindTimeout), "message": "skill exceeded command_timeout"})
	return &tools.Result{Content: string(data), IsError: true}
}

// SkillProtocolError reports a violation of the skill IPC wire format
// (spec.md §4.3 Lifecycle, §6). The owning session is always killed
// before this is returned.
type SkillProtocolError struct {
	SkillName string
	Message   string
}

func (e *SkillProtocolError) Error() string {
	return fmt.Sprintf("skillrunner: protocol violation (%s): %s", e.SkillName, e.Message)
}
