package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "sentinel.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
agent:
  name: test-agent
llm:
  default_provider: anthropic
  providers:
    anthropic:
      api_key_env: ANTHROPIC_API_KEY
capabilities:
  read_paths:
    - /data
`

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Agent.MaxToolRounds != 10 {
		t.Errorf("expected default max_tool_rounds 10, got %d", cfg.Agent.MaxToolRounds)
	}
	if cfg.Agent.HistoryCap != 40 {
		t.Errorf("expected default history_cap 40, got %d", cfg.Agent.HistoryCap)
	}
	if cfg.Capabilities.CommandTimeout.Seconds() != 30 {
		t.Errorf("expected default command_timeout 30s, got %v", cfg.Capabilities.CommandTimeout)
	}
	if cfg.Capabilities.MaxReadBytes != 1<<20 {
		t.Errorf("expected default max_read_bytes 1MiB, got %d", cfg.Capabilities.MaxReadBytes)
	}
}

func TestLoadRejectsUnknownKeyInKnownSection(t *testing.T) {
	path := writeConfig(t, `
agent:
  name: test-agent
  nmae: typo
llm:
  default_provider: anthropic
  providers:
    anthropic:
      api_key_env: ANTHROPIC_API_KEY
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown key inside a known section")
	}
}

func TestLoadWarnsOnUnknownSection(t *testing.T) {
	path := writeConfig(t, minimalConfig+"\nnotasection:\n  foo: bar\n")

	if _, err := Load(path); err != nil {
		t.Fatalf("unknown top-level section should warn, not fail: %v", err)
	}
}

func TestLoadRejectsMissingDefaultProvider(t *testing.T) {
	path := writeConfig(t, `
agent:
  name: test-agent
llm:
  default_provider: openai
  providers:
    anthropic:
      api_key_env: ANTHROPIC_API_KEY
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error for missing default provider entry")
	}
	var verr *ConfigValidationError
	if !asConfigValidationError(err, &verr) {
		t.Fatalf("expected *ConfigValidationError, got %T: %v", err, err)
	}
}

func TestLoadRejectsPathLikeCommand(t *testing.T) {
	path := writeConfig(t, `
agent:
  name: test-agent
llm:
  default_provider: anthropic
  providers:
    anthropic:
      api_key_env: ANTHROPIC_API_KEY
capabilities:
  commands:
    - /usr/bin/rm
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for path-like command entry")
	}
}

func asConfigValidationError(err error, target **ConfigValidationError) bool {
	verr, ok := err.(*ConfigValidationError)
	if ok {
		*target = verr
	}
	return ok
}
