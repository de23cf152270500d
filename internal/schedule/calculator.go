// Package schedule computes next-execution instants for template
// recurrence configurations. All functions are pure: the result depends
// only on the configuration and the explicit reference time, never on the
// wall clock.
package schedule

import (
	"fmt"
	"time"

	"github.com/xtendabl/expensabl/internal/common"
	"github.com/xtendabl/expensabl/internal/model"
)

// NextExecution computes the next qualifying execution instant strictly
// after ref, or nil when the schedule cannot fire: disabled, paused, or
// past its end date. Structural problems in the configuration (unknown
// interval, bad time of day, empty weekday set, bad day of month) return
// an error wrapping common.ErrInvalidSchedule.
//
// Results are clamped to the start date when one is set, and a computed
// time past the end date yields nil.
func NextExecution(s *model.Scheduling, ref time.Time) (*time.Time, error) {
	if s == nil || !s.Enabled || s.Paused {
		return nil, nil
	}
	if s.EndDate != nil && ref.After(model.MillisToTime(*s.EndDate, ref.Location())) {
		return nil, nil
	}

	next, err := nextByInterval(s, ref)
	if err != nil {
		return nil, err
	}

	if s.StartDate != nil {
		start := model.MillisToTime(*s.StartDate, ref.Location())
		if next.Before(start) {
			if s.Interval == model.IntervalCustom {
				next = start
			} else {
				// re-evaluate the rule from just before the start bound so
				// an execution exactly at the start date qualifies
				next, err = nextByInterval(s, start.Add(-time.Millisecond))
				if err != nil {
					return nil, err
				}
			}
		}
	}

	if s.EndDate != nil && next.After(model.MillisToTime(*s.EndDate, ref.Location())) {
		return nil, nil
	}
	return &next, nil
}

func nextByInterval(s *model.Scheduling, ref time.Time) (time.Time, error) {
	switch s.Interval {
	case model.IntervalDaily:
		return nextDaily(s.ExecutionTime, ref)
	case model.IntervalWeekly:
		return nextWeekly(s.ExecutionTime, s.IntervalConfig.DaysOfWeek, ref)
	case model.IntervalMonthly:
		return nextMonthly(s.ExecutionTime, s.IntervalConfig.DayOfMonth, ref)
	case model.IntervalCustom:
		return nextCustom(s.IntervalConfig.IntervalMs, ref)
	default:
		return time.Time{}, fmt.Errorf("%w: unknown interval %q", common.ErrInvalidSchedule, s.Interval)
	}
}

func validateTimeOfDay(t model.TimeOfDay) error {
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
		return fmt.Errorf("%w: execution time %02d:%02d out of range", common.ErrInvalidSchedule, t.Hour, t.Minute)
	}
	return nil
}

// at returns the given calendar day at the configured wall-clock time, in
// the day's location. Using time.Date keeps DST transitions correct.
func at(day time.Time, t model.TimeOfDay) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour, t.Minute, 0, 0, day.Location())
}

// nextDaily finds the next hh:mm strictly after ref, rolling to the next
// calendar day when today's slot has already passed (or is exactly now).
func nextDaily(t model.TimeOfDay, ref time.Time) (time.Time, error) {
	if err := validateTimeOfDay(t); err != nil {
		return time.Time{}, err
	}
	cand := at(ref, t)
	if !cand.After(ref) {
		cand = at(ref.AddDate(0, 0, 1), t)
	}
	return cand, nil
}

// nextWeekly finds the soonest configured weekday at hh:mm strictly after
// ref, wrapping to the following week when none remain. An empty weekday
// set is invalid configuration.
func nextWeekly(t model.TimeOfDay, days []string, ref time.Time) (time.Time, error) {
	if err := validateTimeOfDay(t); err != nil {
		return time.Time{}, err
	}
	if len(days) == 0 {
		return time.Time{}, fmt.Errorf("%w: weekly schedule has no weekdays", common.ErrInvalidSchedule)
	}

	want := make(map[time.Weekday]bool, len(days))
	for _, name := range days {
		d, err := model.ParseWeekday(name)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %v", common.ErrInvalidSchedule, err)
		}
		want[d] = true
	}

	// offset 7 covers the wrap back to today's weekday next week
	for offset := 0; offset <= 7; offset++ {
		day := ref.AddDate(0, 0, offset)
		if !want[day.Weekday()] {
			continue
		}
		cand := at(day, t)
		if cand.After(ref) {
			return cand, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: no qualifying weekday found", common.ErrInvalidSchedule)
}

// nextMonthly finds the next occurrence of the configured day of month at
// hh:mm strictly after ref. DayOfMonth may be model.LastDayOfMonth. When
// the configured day does not exist in a candidate month (day 31 in a
// 30-day month), it clamps to that month's last day rather than skipping
// the month.
func nextMonthly(t model.TimeOfDay, dayOfMonth int, ref time.Time) (time.Time, error) {
	if err := validateTimeOfDay(t); err != nil {
		return time.Time{}, err
	}
	if dayOfMonth != model.LastDayOfMonth && (dayOfMonth < 1 || dayOfMonth > 31) {
		return time.Time{}, fmt.Errorf("%w: day of month %d out of range", common.ErrInvalidSchedule, dayOfMonth)
	}

	for add := 0; add <= 1; add++ {
		first := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, ref.Location()).AddDate(0, add, 0)
		last := first.AddDate(0, 1, -1).Day()
		day := dayOfMonth
		if day == model.LastDayOfMonth || day > last {
			day = last
		}
		cand := time.Date(first.Year(), first.Month(), day, t.Hour, t.Minute, 0, 0, ref.Location())
		if cand.After(ref) {
			return cand, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: no qualifying day found", common.ErrInvalidSchedule)
}

// nextCustom adds the configured interval to ref, clamped into the
// [5 minute, 1 year] bounds. A non-positive interval is invalid.
func nextCustom(intervalMs int64, ref time.Time) (time.Time, error) {
	if intervalMs <= 0 {
		return time.Time{}, fmt.Errorf("%w: custom interval must be positive", common.ErrInvalidSchedule)
	}
	d := time.Duration(intervalMs) * time.Millisecond
	if d < model.MinCustomInterval {
		d = model.MinCustomInterval
	}
	if d > model.MaxCustomInterval {
		d = model.MaxCustomInterval
	}
	return ref.Add(d), nil
}
