package cron

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler ticks tasks against their schedules and runs each one
// whose next-run time has passed. Task failures are logged and never
// stop the scheduler — a missed audit rotation or skill rescan should
// not take the process down.
type Scheduler struct {
	logger       *slog.Logger
	now          func() time.Time
	tickInterval time.Duration

	mu      sync.Mutex
	tasks   []*Task
	started bool
	wg      sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger configures the scheduler's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTickInterval overrides how often the scheduler checks for due
// tasks. Defaults to one second.
func WithTickInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.tickInterval = interval
		}
	}
}

// NewScheduler builds a scheduler over the given tasks.
func NewScheduler(tasks []Task, opts ...Option) *Scheduler {
	s := &Scheduler{
		logger:       slog.Default().With("component", "cron"),
		now:          time.Now,
		tickInterval: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	now := s.now()
	s.tasks = make([]*Task, len(tasks))
	for i := range tasks {
		t := tasks[i]
		t.nextRun = t.Schedule.Next(now)
		s.tasks[i] = &t
	}
	return s
}

// Start begins the scheduler loop until ctx is canceled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runDue(ctx)
			}
		}
	}()
}

// Stop waits for the scheduler's background loop to exit.
func (s *Scheduler) Stop() {
	s.wg.Wait()
}

func (s *Scheduler) runDue(ctx context.Context) {
	now := s.now()
	s.mu.Lock()
	due := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if !t.nextRun.After(now) {
			due = append(due, t)
			t.nextRun = t.Schedule.Next(now)
		}
	}
	s.mu.Unlock()

	for _, t := range due {
		if err := t.Run(ctx); err != nil {
			s.logger.Error("cron task failed", "task", t.Name, "error", err)
		}
	}
}
