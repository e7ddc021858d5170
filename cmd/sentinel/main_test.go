package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	required := []string{"serve", "config", "skills", "audit-log"}
	for _, name := range required {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestConfigValidate_ReportsMissingRequiredField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sentinel.yaml")
	if err := os.WriteFile(path, []byte("agent:\n  name: test\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cmd := buildRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config", "validate", "--config", path})

	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected validation to fail for a config missing llm.default_provider")
	}
	if out.Len() == 0 {
		t.Fatalf("expected issues to be printed to stdout")
	}
}

func TestSkillsList_ReportsWhenSkillsDirUnset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sentinel.yaml")
	contents := `agent:
  name: test
llm:
  default_provider: anthropic
  providers:
    anthropic:
      api_key_env: TEST_ANTHROPIC_KEY
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cmd := buildRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"skills", "list", "--config", path})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected skills list to succeed with no skills_dir, got %v", err)
	}
	if out.Len() == 0 {
		t.Fatalf("expected skills list to print a discovery summary")
	}
}
