// Package cronspec parses and enumerates cron expressions for spec.md
// §4.2's scheduler, IANA-timezone aware so the same schedule fires at a
// consistent wall-clock time across DST transitions. The enumeration
// function is pure and is what the scheduler's tick loop uses;
// `workflowctl schedule preview` walks Spec.Next directly, the same
// iterator the enumeration is built on.
package cronspec

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Spec is a parsed cron expression bound to an IANA timezone.
type Spec struct {
	expr     string
	timezone string
	loc      *time.Location
	sched    cron.Schedule
}

// Parse validates a cron expression against the given IANA timezone name
// (e.g. "America/New_York"); an empty timezone defaults to UTC.
func Parse(expr, timezone string) (*Spec, error) {
	if timezone == "" {
		timezone = "UTC"
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("cronspec: unknown timezone %q: %w", timezone, err)
	}
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("cronspec: invalid cron expression %q: %w", expr, err)
	}
	return &Spec{expr: expr, timezone: timezone, loc: loc, sched: sched}, nil
}

func (s *Spec) String() string { return s.expr }

// Next returns the first fire time strictly after `after`, in the spec's
// timezone.
func (s *Spec) Next(after time.Time) time.Time {
	return s.sched.Next(after.In(s.loc))
}

// EnumerateDueTimes returns every fire time in (since, until], in order.
// The scheduler's tick calls it with since just before next_run_at and
// until=now+lookahead; `workflowctl schedule preview` does not call it.
func EnumerateDueTimes(s *Spec, since, until time.Time) []time.Time {
	var out []time.Time
	cursor := since
	for {
		next := s.Next(cursor)
		if next.After(until) {
			break
		}
		out = append(out, next)
		cursor = next
	}
	return out
}
