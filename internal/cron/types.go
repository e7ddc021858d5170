package cron

import (
	"context"
	"time"
)

// TaskFunc is one scheduled unit of work. Errors are logged by the
// scheduler and do not stop future runs.
type TaskFunc func(ctx context.Context) error

// Task pairs a named TaskFunc with its schedule.
type Task struct {
	Name     string
	Schedule Schedule
	Run      TaskFunc

	nextRun time.Time
}
