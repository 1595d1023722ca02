package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"ContentDigest/internal/domain"
)

// cronSpec lowers a recurring schedule plus its "HH:MM" time of day into a
// standard cron expression. Weekly schedules fire on the weekday the request
// was created; monthly schedules clamp to day 28 so every month fires.
func cronSpec(req *domain.DigestRequest) (string, error) {
	hour, minute, err := parseAt(req.At)
	if err != nil {
		return "", err
	}

	anchor := req.CreatedAt
	if anchor.IsZero() {
		anchor = time.Now().UTC()
	}

	switch req.Schedule {
	case domain.ScheduleDaily:
		return fmt.Sprintf("%d %d * * *", minute, hour), nil
	case domain.ScheduleWeekly:
		return fmt.Sprintf("%d %d * * %d", minute, hour, int(anchor.Weekday())), nil
	case domain.ScheduleMonthly:
		day := anchor.Day()
		if day > 28 {
			day = 28
		}
		return fmt.Sprintf("%d %d %d * *", minute, hour, day), nil
	default:
		return "", fmt.Errorf("unknown schedule type %q", req.Schedule)
	}
}

func parseAt(at string) (hour, minute int, err error) {
	if at == "" {
		return 8, 0, nil
	}
	t, err := time.Parse("15:04", at)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q: %w", at, err)
	}
	return t.Hour(), t.Minute(), nil
}

// NextRun computes the next fire time strictly after from. Computing it from
// the current wall clock rather than the previous NextRun collapses runs
// missed during downtime into a single upcoming fire.
func NextRun(req *domain.DigestRequest, from time.Time, loc *time.Location) (time.Time, error) {
	spec, err := cronSpec(req)
	if err != nil {
		return time.Time{}, err
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	return sched.Next(from.In(loc)), nil
}
