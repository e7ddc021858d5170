package cron

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/haasonsaas/sentinel/internal/audit"
	"github.com/haasonsaas/sentinel/internal/capability"
	"github.com/haasonsaas/sentinel/internal/skillrunner"
)

func TestNewAuditRotationTaskRotatesOnRun(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "audit.log")

	logger, err := audit.NewLogger(audit.Config{Output: "file:" + logPath, FlushInterval: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("audit.NewLogger: %v", err)
	}
	defer logger.Close()

	sched, err := NewSchedule("@daily", "")
	if err != nil {
		t.Fatalf("NewSchedule: %v", err)
	}

	task := NewAuditRotationTask("audit-rotate", sched, logger)
	if err := task.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) < 2 {
		t.Fatalf("expected the original file to be rotated aside plus a fresh one, got %d entries", len(entries))
	}
}

func TestNewSkillRescanTaskReloadsRunner(t *testing.T) {
	skillsDir := t.TempDir()

	grant, err := capability.New(capability.GrantConfig{}, nil)
	if err != nil {
		t.Fatalf("capability.New: %v", err)
	}

	runner, _, err := skillrunner.New(skillrunner.Config{SkillsDir: skillsDir, ScratchRoot: t.TempDir()}, grant, nil)
	if err != nil {
		t.Fatalf("skillrunner.New: %v", err)
	}

	sched, err := NewSchedule("@daily", "")
	if err != nil {
		t.Fatalf("NewSchedule: %v", err)
	}

	task := NewSkillRescanTask("skill-rescan", sched, runner)
	if err := task.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
}
