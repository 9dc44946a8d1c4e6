package automation

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule is a typed task schedule: either a fixed interval or a standard
// five-field cron expression. Expressions are validated at registration so
// a bad schedule fails fast instead of silently never firing.
type Schedule struct {
	every time.Duration
	expr  string
}

// Every schedules a task at a fixed interval.
func Every(d time.Duration) Schedule {
	return Schedule{every: d}
}

// Cron schedules a task with a cron expression ("*/5 * * * *").
func Cron(expr string) Schedule {
	return Schedule{expr: expr}
}

// Validate checks that exactly one form is set and that a cron expression
// parses.
func (s Schedule) Validate() error {
	switch {
	case s.every > 0 && s.expr != "":
		return fmt.Errorf("schedule cannot set both interval and cron expression")
	case s.every > 0:
		return nil
	case s.expr != "":
		if _, err := cron.ParseStandard(s.expr); err != nil {
			return fmt.Errorf("parse cron expression %q: %w", s.expr, err)
		}
		return nil
	default:
		return fmt.Errorf("schedule requires an interval or a cron expression")
	}
}

func (s Schedule) String() string {
	if s.every > 0 {
		return "@every " + s.every.String()
	}
	return s.expr
}

// cronSchedule converts to the scheduler's native form. Validate must have
// passed.
func (s Schedule) cronSchedule() (cron.Schedule, error) {
	if s.every > 0 {
		return cron.Every(s.every), nil
	}
	return cron.ParseStandard(s.expr)
}
