package model

import (
	"fmt"
	"strings"
	"time"
)

// Interval identifies a recurrence rule variant.
type Interval string

const (
	IntervalDaily   Interval = "daily"
	IntervalWeekly  Interval = "weekly"
	IntervalMonthly Interval = "monthly"
	IntervalCustom  Interval = "custom"
)

// LastDayOfMonth is the day-of-month sentinel meaning "the last day of
// whichever month the execution lands in".
const LastDayOfMonth = -1

// TimeOfDay is a wall-clock execution time.
type TimeOfDay struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// IntervalConfig carries the interval-specific parameters. Only the fields
// for the active interval variant are meaningful.
type IntervalConfig struct {
	// DaysOfWeek holds lowercase weekday names for weekly schedules.
	DaysOfWeek []string `json:"daysOfWeek,omitempty"`
	// DayOfMonth is 1-31 or LastDayOfMonth for monthly schedules.
	DayOfMonth int `json:"dayOfMonth,omitempty"`
	// IntervalMs is the custom interval duration in milliseconds.
	IntervalMs int64 `json:"intervalMs,omitempty"`
}

// Scheduling is the recurrence configuration attached to a template.
// Absence of the whole struct means "not scheduled"; Paused suspends an
// enabled schedule without losing its configuration.
type Scheduling struct {
	Enabled        bool           `json:"enabled"`
	Paused         bool           `json:"paused"`
	Interval       Interval       `json:"interval"`
	ExecutionTime  TimeOfDay      `json:"executionTime"`
	IntervalConfig IntervalConfig `json:"intervalConfig"`
	StartDate      *int64         `json:"startDate,omitempty"` // epoch milliseconds
	EndDate        *int64         `json:"endDate,omitempty"`   // epoch milliseconds
	// NextExecution is derived; it is recomputed by the schedule calculator
	// on every scheduling mutation and never hand-edited.
	NextExecution *int64 `json:"nextExecution,omitempty"`
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday converts a lowercase weekday name to time.Weekday.
func ParseWeekday(name string) (time.Weekday, error) {
	d, ok := weekdayNames[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("unknown weekday %q", name)
	}
	return d, nil
}

// Clone returns a deep copy of the scheduling configuration.
func (s *Scheduling) Clone() *Scheduling {
	if s == nil {
		return nil
	}
	out := *s
	if s.IntervalConfig.DaysOfWeek != nil {
		out.IntervalConfig.DaysOfWeek = append([]string(nil), s.IntervalConfig.DaysOfWeek...)
	}
	out.StartDate = cloneInt64(s.StartDate)
	out.EndDate = cloneInt64(s.EndDate)
	out.NextExecution = cloneInt64(s.NextExecution)
	return &out
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
