package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/sentinel/internal/capability"
	"github.com/haasonsaas/sentinel/internal/platform"
)

func newTestFixtures(t *testing.T) (*capability.Checker, platform.Backend, string) {
	t.Helper()
	root := t.TempDir()
	backend := platform.NewOSBackend()
	grant, err := capability.New(capability.GrantConfig{
		ReadPaths:      []string{root},
		WritePaths:     []string{root},
		Commands:       []string{"echo", "sleep"},
		CommandTimeout: 2 * time.Second,
	}, func(p string) (string, error) { return backend.Canonicalize(context.Background(), p) })
	if err != nil {
		t.Fatalf("build grant: %v", err)
	}
	checker := capability.NewChecker(grant, func(p string) (string, error) {
		return backend.Canonicalize(context.Background(), p)
	}, nil)
	return checker, backend, root
}

func TestWriteThenReadFile(t *testing.T) {
	checker, backend, root := newTestFixtures(t)
	writeTool := NewWriteFileTool(checker, backend, 0)
	readTool := NewReadFileTool(checker, backend, 0)

	path := filepath.Join(root, "notes.txt")
	writeParams, _ := json.Marshal(map[string]string{"path": path, "content": "hello sentinel"})
	result, err := writeTool.Execute(context.Background(), writeParams)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected write error: %s", result.Content)
	}

	readParams, _ := json.Marshal(map[string]string{"path": path})
	result, err = readTool.Execute(context.Background(), readParams)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(result.Content, "hello sentinel") {
		t.Fatalf("expected content in result, got %s", result.Content)
	}
}

func TestWriteFileOutsideGrantIsDenied(t *testing.T) {
	checker, backend, _ := newTestFixtures(t)
	writeTool := NewWriteFileTool(checker, backend, 0)

	params, _ := json.Marshal(map[string]string{"path": "/etc/sentinel-test-denied", "content": "x"})
	result, err := writeTool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected denial for out-of-grant path")
	}
	if !strings.Contains(result.Content, "denied") {
		t.Fatalf("expected denied kind, got %s", result.Content)
	}
}

func TestListDirectory(t *testing.T) {
	checker, backend, root := newTestFixtures(t)
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	if err := os.Mkdir(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatalf("seed dir: %v", err)
	}

	tool := NewListDirectoryTool(checker, backend)
	params, _ := json.Marshal(map[string]string{"path": root})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
	if !strings.Contains(result.Content, "a.txt") || !strings.Contains(result.Content, "sub") {
		t.Fatalf("expected both entries, got %s", result.Content)
	}
}

func TestRunCommandSuccess(t *testing.T) {
	checker, backend, root := newTestFixtures(t)
	tool := NewRunCommandTool(checker, backend, root)

	params, _ := json.Marshal(map[string]any{"name": "echo", "args": []string{"hi"}})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
	if !strings.Contains(result.Content, "hi") {
		t.Fatalf("expected stdout in result, got %s", result.Content)
	}
}

func TestRunCommandNotInGrantIsDenied(t *testing.T) {
	checker, backend, root := newTestFixtures(t)
	tool := NewRunCommandTool(checker, backend, root)

	params, _ := json.Marshal(map[string]any{"name": "rm", "args": []string{"-rf", "/"}})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected denial for ungranted command")
	}
}

func TestRunCommandTimeout(t *testing.T) {
	checker, backend, root := newTestFixtures(t)
	tool := NewRunCommandTool(checker, backend, root)

	params, _ := json.Marshal(map[string]any{"name": "sleep", "args": []string{"5"}})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.IsError || !strings.Contains(result.Content, "timeout") {
		t.Fatalf("expected timeout error, got %s", result.Content)
	}
}
