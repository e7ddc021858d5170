package cron

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerRunsDueTask(t *testing.T) {
	sched, err := NewSchedule("@every 1s", "")
	if err != nil {
		t.Fatalf("NewSchedule: %v", err)
	}

	var runs int32
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := base

	s := NewScheduler([]Task{
		{Name: "test", Schedule: sched, Run: func(ctx context.Context) error {
			atomic.AddInt32(&runs, 1)
			return nil
		}},
	}, WithNow(func() time.Time { return clock }), WithTickInterval(10*time.Millisecond))

	clock = base.Add(2 * time.Second)
	s.runDue(context.Background())

	if atomic.LoadInt32(&runs) != 1 {
		t.Fatalf("expected 1 run, got %d", runs)
	}
}

func TestNewScheduleRejectsEmpty(t *testing.T) {
	if _, err := NewSchedule("", ""); err == nil {
		t.Fatal("expected error for empty schedule")
	}
}

func TestNewScheduleRejectsInvalid(t *testing.T) {
	if _, err := NewSchedule("not a cron expr !!", ""); err == nil {
		t.Fatal("expected error for invalid expression")
	}
}
