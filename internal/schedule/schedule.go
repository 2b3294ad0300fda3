package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/adhocore/gronx"
)

// Kind is how a schedule expression recurs.
type Kind string

const (
	KindCron     Kind = "cron"
	KindInterval Kind = "interval"
)

// Schedule is a parsed schedule expression: a cron expression or
// "@every <duration>".
type Schedule struct {
	Kind     Kind
	CronExpr string
	Interval time.Duration
}

// Parse validates expr and returns its schedule.
func Parse(expr string) (*Schedule, error) {
	expr = strings.TrimSpace(expr)
	if rest, ok := strings.CutPrefix(expr, "@every "); ok {
		d, err := time.ParseDuration(strings.TrimSpace(rest))
		if err != nil {
			return nil, fmt.Errorf("invalid interval %q: %w", rest, err)
		}
		if d < time.Minute {
			return nil, fmt.Errorf("interval %s is shorter than one minute", d)
		}
		return &Schedule{Kind: KindInterval, Interval: d}, nil
	}
	if !gronx.New().IsValid(expr) {
		return nil, fmt.Errorf("invalid cron expression: %s", expr)
	}
	return &Schedule{Kind: KindCron, CronExpr: expr}, nil
}

// Next returns the first due time strictly after after.
func (s *Schedule) Next(after time.Time) (time.Time, error) {
	switch s.Kind {
	case KindInterval:
		return after.Add(s.Interval), nil
	case KindCron:
		next, err := gronx.NextTickAfter(s.CronExpr, after, false)
		if err != nil {
			return time.Time{}, fmt.Errorf("next tick for %q: %w", s.CronExpr, err)
		}
		return next, nil
	default:
		return time.Time{}, fmt.Errorf("unknown schedule kind: %s", s.Kind)
	}
}

// NextRun parses expr and returns its next due time after now, or nil when
// expr is invalid.
func NextRun(expr string, now time.Time) *time.Time {
	s, err := Parse(expr)
	if err != nil {
		return nil
	}
	next, err := s.Next(now)
	if err != nil {
		return nil
	}
	return &next
}

// Describe returns a human-readable form of expr.
func Describe(expr string) string {
	s, err := Parse(expr)
	if err != nil {
		return expr
	}

	switch s.Kind {
	case KindInterval:
		d := s.Interval
		switch {
		case d%time.Hour == 0:
			h := int(d.Hours())
			if h == 1 {
				return "Every hour"
			}
			return fmt.Sprintf("Every %d hours", h)
		case d%time.Minute == 0:
			m := int(d.Minutes())
			if m == 1 {
				return "Every minute"
			}
			return fmt.Sprintf("Every %d minutes", m)
		default:
			return "Every " + d.String()
		}
	default:
		if strings.HasPrefix(s.CronExpr, "@") {
			return s.CronExpr
		}
		return "Cron: " + s.CronExpr
	}
}
