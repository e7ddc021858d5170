package skillrunner

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/haasonsaas/sentinel/internal/capability"
	"github.com/haasonsaas/sentinel/internal/tools"
)

// writeSkill creates a minimal skill directory: a manifest plus a
// POSIX shell script that reads exactly one request line and writes
// back scriptedReply, standing in for a real skill executable the way
// the teacher's transport tests stand in "echo" for a real MCP
// server.
func writeSkill(t *testing.T, root, name, manifestExtra, scriptedReply string) {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	manifest := "name: " + name + "\n" +
		"version: \"1.0.0\"\n" +
		"description: test skill\n" +
		"executable_path: ./run.sh\n" +
		manifestExtra +
		"parameter_schema:\n  type: object\n"
	if err := os.WriteFile(filepath.Join(dir, ManifestFilename), []byte(manifest), 0o644); err != nil {
		t.Fatalf("WriteFile manifest: %v", err)
	}

	script := "#!/bin/sh\nread line\nprintf '" + scriptedReply + "\\n'\n"
	scriptPath := filepath.Join(dir, "run.sh")
	if err := os.WriteFile(scriptPath, []byte(script), 0o755); err != nil {
		t.Fatalf("WriteFile script: %v", err)
	}
}

func TestRunnerDispatchInvokesSkillSuccessfully(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "greet", "", `{"id":1,"result":{"greeting":"hello"}}`)

	grant, err := capability.New(capability.GrantConfig{}, nil)
	if err != nil {
		t.Fatalf("capability.New: %v", err)
	}

	runner, rejected, err := New(Config{SkillsDir: root, ScratchRoot: t.TempDir()}, grant, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if rejected != nil {
		t.Fatalf("unexpected rejections: %v", rejected)
	}

	defs := runner.Schemas()
	if len(defs) != 1 || defs[0].Name != "skill-greet" {
		t.Fatalf("expected one schema named skill-greet, got %+v", defs)
	}

	res, err := runner.Dispatch(context.Background(), "skill-greet", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.IsError {
		t.Fatalf("expected success, got error result: %s", res.Content)
	}

	var decoded struct {
		Greeting string `json:"greeting"`
	}
	if err := json.Unmarshal([]byte(res.Content), &decoded); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if decoded.Greeting != "hello" {
		t.Errorf("greeting = %q", decoded.Greeting)
	}

	runner.EndTurn("turn-1")
}

func TestRunnerDispatchUnknownToolReturnsNotFound(t *testing.T) {
	root := t.TempDir()
	grant, err := capability.New(capability.GrantConfig{}, nil)
	if err != nil {
		t.Fatalf("capability.New: %v", err)
	}
	runner, _, err := New(Config{SkillsDir: root, ScratchRoot: t.TempDir()}, grant, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := runner.Dispatch(context.Background(), "skill-nonexistent", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected a not-found error result")
	}
	var body struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal([]byte(res.Content), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Kind != string(tools.KindNotFound) {
		t.Errorf("kind = %q, want %q", body.Kind, tools.KindNotFound)
	}
}

func TestRunnerDispatchProtocolViolationKillsSession(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "broken", "", "not-json-at-all")

	grant, err := capability.New(capability.GrantConfig{}, nil)
	if err != nil {
		t.Fatalf("capability.New: %v", err)
	}
	runner, _, err := New(Config{SkillsDir: root, ScratchRoot: t.TempDir()}, grant, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = runner.Dispatch(context.Background(), "skill-broken", json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected a protocol error")
	}
	if _, ok := err.(*SkillProtocolError); !ok {
		t.Errorf("expected *SkillProtocolError, got %T: %v", err, err)
	}
	if _, ok := runner.sessions["broken"]; ok {
		t.Error("expected the session to be dropped after a protocol violation")
	}
}

func TestNewRejectsManifestExceedingProcessGrant(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "writer", "required_caps:\n  write_paths: [\"/data\"]\n", `{"id":1,"result":{}}`)

	grant, err := capability.New(capability.GrantConfig{WritePaths: []string{"/tmp"}}, nil)
	if err != nil {
		t.Fatalf("capability.New: %v", err)
	}

	runner, rejected, err := New(Config{SkillsDir: root, ScratchRoot: t.TempDir()}, grant, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(rejected) != 1 {
		t.Fatalf("expected exactly 1 rejected skill, got %v", rejected)
	}
	if len(runner.Schemas()) != 0 {
		t.Fatal("a rejected skill must not be registered")
	}
}

func TestSessionInvokeTimesOutAndKillsSession(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "slow")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	manifest := "name: slow\nversion: \"1.0.0\"\ndescription: slow skill\nexecutable_path: ./run.sh\nparameter_schema:\n  type: object\n"
	if err := os.WriteFile(filepath.Join(dir, ManifestFilename), []byte(manifest), 0o644); err != nil {
		t.Fatalf("WriteFile manifest: %v", err)
	}
	script := "#!/bin/sh\nsleep 5\n"
	if err := os.WriteFile(filepath.Join(dir, "run.sh"), []byte(script), 0o755); err != nil {
		t.Fatalf("WriteFile script: %v", err)
	}

	m, err := ParseManifestFile(filepath.Join(dir, ManifestFilename))
	if err != nil {
		t.Fatalf("ParseManifestFile: %v", err)
	}

	sess, err := startSession(context.Background(), m, t.TempDir())
	if err != nil {
		t.Fatalf("startSession: %v", err)
	}

	res, err := sess.invoke(context.Background(), "skill-slow", json.RawMessage(`{}`), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected a timeout error result")
	}
	if !sess.dead {
		t.Error("expected the session to be marked dead after timeout")
	}
}
