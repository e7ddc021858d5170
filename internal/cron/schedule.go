// Package cron runs Sentinel's internal maintenance tasks — audit-log
// rotation and periodic skill re-discovery — on operator-configured
// schedules. It is deliberately narrower than a general job scheduler:
// there are exactly two task kinds, both internal to the process, with
// no webhook/message/custom job types.
package cron

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// Schedule is a parsed cron expression bound to an optional timezone.
type Schedule struct {
	expr     string
	timezone string
	schedule cron.Schedule
}

// NewSchedule parses a standard (optionally second-resolution) cron
// expression, or one of robfig/cron's descriptors (@hourly, @daily).
func NewSchedule(expr, timezone string) (Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Schedule{}, fmt.Errorf("cron: schedule expression is required")
	}
	parsed, err := cronParser.Parse(expr)
	if err != nil {
		return Schedule{}, fmt.Errorf("cron: invalid expression %q: %w", expr, err)
	}
	return Schedule{expr: expr, timezone: strings.TrimSpace(timezone), schedule: parsed}, nil
}

// Next returns the next run time strictly after now.
func (s Schedule) Next(now time.Time) time.Time {
	loc := now.Location()
	if s.timezone != "" {
		if tz, err := time.LoadLocation(s.timezone); err == nil {
			loc = tz
		}
	}
	return s.schedule.Next(now.In(loc))
}

func (s Schedule) String() string { return s.expr }
