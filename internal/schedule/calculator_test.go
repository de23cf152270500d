package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtendabl/expensabl/internal/common"
	"github.com/xtendabl/expensabl/internal/model"
)

func daily(hour, minute int) *model.Scheduling {
	return &model.Scheduling{
		Enabled:       true,
		Interval:      model.IntervalDaily,
		ExecutionTime: model.TimeOfDay{Hour: hour, Minute: minute},
	}
}

func mustUTC(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return ts
}

func TestNextExecutionDaily(t *testing.T) {
	t.Run("rolls to next day when today's slot has passed", func(t *testing.T) {
		ref := mustUTC(t, "2024-01-01T10:00:00Z")
		next, err := NextExecution(daily(9, 0), ref)
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.Equal(t, mustUTC(t, "2024-01-02T09:00:00Z"), *next)
	})

	t.Run("uses today when the slot is still ahead", func(t *testing.T) {
		ref := mustUTC(t, "2024-01-01T08:30:00Z")
		next, err := NextExecution(daily(9, 0), ref)
		require.NoError(t, err)
		assert.Equal(t, mustUTC(t, "2024-01-01T09:00:00Z"), *next)
	})

	t.Run("exactly now rolls forward", func(t *testing.T) {
		ref := mustUTC(t, "2024-01-01T09:00:00Z")
		next, err := NextExecution(daily(9, 0), ref)
		require.NoError(t, err)
		assert.Equal(t, mustUTC(t, "2024-01-02T09:00:00Z"), *next)
	})

	t.Run("rejects out-of-range execution time", func(t *testing.T) {
		_, err := NextExecution(daily(24, 0), mustUTC(t, "2024-01-01T00:00:00Z"))
		assert.ErrorIs(t, err, common.ErrInvalidSchedule)
	})
}

func TestNextExecutionWeekly(t *testing.T) {
	weekly := func(days ...string) *model.Scheduling {
		return &model.Scheduling{
			Enabled:        true,
			Interval:       model.IntervalWeekly,
			ExecutionTime:  model.TimeOfDay{Hour: 14, Minute: 30},
			IntervalConfig: model.IntervalConfig{DaysOfWeek: days},
		}
	}

	t.Run("picks the soonest configured weekday", func(t *testing.T) {
		// 2024-01-02 is a Tuesday
		ref := mustUTC(t, "2024-01-02T10:00:00Z")
		next, err := NextExecution(weekly("monday", "wednesday"), ref)
		require.NoError(t, err)
		assert.Equal(t, mustUTC(t, "2024-01-03T14:30:00Z"), *next)
		assert.Equal(t, time.Wednesday, next.Weekday())
	})

	t.Run("wraps to the following week", func(t *testing.T) {
		// Thursday, past both configured days
		ref := mustUTC(t, "2024-01-04T16:00:00Z")
		next, err := NextExecution(weekly("monday", "wednesday"), ref)
		require.NoError(t, err)
		assert.Equal(t, mustUTC(t, "2024-01-08T14:30:00Z"), *next)
		assert.Equal(t, time.Monday, next.Weekday())
	})

	t.Run("same weekday later time stays today", func(t *testing.T) {
		ref := mustUTC(t, "2024-01-03T10:00:00Z") // Wednesday morning
		next, err := NextExecution(weekly("wednesday"), ref)
		require.NoError(t, err)
		assert.Equal(t, mustUTC(t, "2024-01-03T14:30:00Z"), *next)
	})

	t.Run("same weekday past time wraps a full week", func(t *testing.T) {
		ref := mustUTC(t, "2024-01-03T16:00:00Z") // Wednesday afternoon
		next, err := NextExecution(weekly("wednesday"), ref)
		require.NoError(t, err)
		assert.Equal(t, mustUTC(t, "2024-01-10T14:30:00Z"), *next)
	})

	t.Run("empty weekday set is invalid", func(t *testing.T) {
		_, err := NextExecution(weekly(), mustUTC(t, "2024-01-02T10:00:00Z"))
		assert.ErrorIs(t, err, common.ErrInvalidSchedule)
	})

	t.Run("unknown weekday name is invalid", func(t *testing.T) {
		_, err := NextExecution(weekly("blursday"), mustUTC(t, "2024-01-02T10:00:00Z"))
		assert.ErrorIs(t, err, common.ErrInvalidSchedule)
	})
}

func TestNextExecutionMonthly(t *testing.T) {
	monthly := func(day int) *model.Scheduling {
		return &model.Scheduling{
			Enabled:        true,
			Interval:       model.IntervalMonthly,
			ExecutionTime:  model.TimeOfDay{Hour: 9, Minute: 0},
			IntervalConfig: model.IntervalConfig{DayOfMonth: day},
		}
	}

	t.Run("fixed day later this month", func(t *testing.T) {
		ref := mustUTC(t, "2024-01-10T12:00:00Z")
		next, err := NextExecution(monthly(15), ref)
		require.NoError(t, err)
		assert.Equal(t, mustUTC(t, "2024-01-15T09:00:00Z"), *next)
	})

	t.Run("fixed day already passed rolls to next month", func(t *testing.T) {
		ref := mustUTC(t, "2024-01-20T12:00:00Z")
		next, err := NextExecution(monthly(15), ref)
		require.NoError(t, err)
		assert.Equal(t, mustUTC(t, "2024-02-15T09:00:00Z"), *next)
	})

	t.Run("nonexistent day clamps to month end", func(t *testing.T) {
		// day 31 in February clamps to the 29th (2024 is a leap year)
		ref := mustUTC(t, "2024-01-31T23:00:00Z")
		next, err := NextExecution(monthly(31), ref)
		require.NoError(t, err)
		assert.Equal(t, mustUTC(t, "2024-02-29T09:00:00Z"), *next)
	})

	t.Run("last-day sentinel", func(t *testing.T) {
		ref := mustUTC(t, "2024-02-10T12:00:00Z")
		next, err := NextExecution(monthly(model.LastDayOfMonth), ref)
		require.NoError(t, err)
		assert.Equal(t, mustUTC(t, "2024-02-29T09:00:00Z"), *next)
	})

	t.Run("day out of range is invalid", func(t *testing.T) {
		_, err := NextExecution(monthly(32), mustUTC(t, "2024-01-10T12:00:00Z"))
		assert.ErrorIs(t, err, common.ErrInvalidSchedule)
	})
}

func TestNextExecutionCustom(t *testing.T) {
	custom := func(ms int64) *model.Scheduling {
		return &model.Scheduling{
			Enabled:        true,
			Interval:       model.IntervalCustom,
			IntervalConfig: model.IntervalConfig{IntervalMs: ms},
		}
	}

	ref := mustUTC(t, "2024-06-01T00:00:00Z")

	t.Run("adds the interval", func(t *testing.T) {
		next, err := NextExecution(custom((6 * time.Hour).Milliseconds()), ref)
		require.NoError(t, err)
		assert.Equal(t, ref.Add(6*time.Hour), *next)
	})

	t.Run("clamps below the five minute floor", func(t *testing.T) {
		next, err := NextExecution(custom(1000), ref)
		require.NoError(t, err)
		assert.Equal(t, ref.Add(5*time.Minute), *next)
	})

	t.Run("clamps above the one year ceiling", func(t *testing.T) {
		next, err := NextExecution(custom((400 * 24 * time.Hour).Milliseconds()), ref)
		require.NoError(t, err)
		assert.Equal(t, ref.Add(365*24*time.Hour), *next)
	})

	t.Run("non-positive interval is invalid", func(t *testing.T) {
		_, err := NextExecution(custom(0), ref)
		assert.ErrorIs(t, err, common.ErrInvalidSchedule)
	})
}

func TestNextExecutionStates(t *testing.T) {
	ref := mustUTC(t, "2024-01-01T10:00:00Z")

	t.Run("nil scheduling", func(t *testing.T) {
		next, err := NextExecution(nil, ref)
		require.NoError(t, err)
		assert.Nil(t, next)
	})

	t.Run("disabled", func(t *testing.T) {
		s := daily(9, 0)
		s.Enabled = false
		next, err := NextExecution(s, ref)
		require.NoError(t, err)
		assert.Nil(t, next)
	})

	t.Run("paused", func(t *testing.T) {
		s := daily(9, 0)
		s.Paused = true
		next, err := NextExecution(s, ref)
		require.NoError(t, err)
		assert.Nil(t, next)
	})

	t.Run("reference past end date", func(t *testing.T) {
		s := daily(9, 0)
		end := model.TimeToMillis(mustUTC(t, "2023-12-31T00:00:00Z"))
		s.EndDate = &end
		next, err := NextExecution(s, ref)
		require.NoError(t, err)
		assert.Nil(t, next)
	})

	t.Run("computed time past end date", func(t *testing.T) {
		s := daily(9, 0)
		end := model.TimeToMillis(mustUTC(t, "2024-01-01T12:00:00Z"))
		s.EndDate = &end
		// next daily slot would be Jan 2, past the end
		next, err := NextExecution(s, ref)
		require.NoError(t, err)
		assert.Nil(t, next)
	})

	t.Run("start date pushes the result forward", func(t *testing.T) {
		s := daily(9, 0)
		start := model.TimeToMillis(mustUTC(t, "2024-03-01T00:00:00Z"))
		s.StartDate = &start
		next, err := NextExecution(s, ref)
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.Equal(t, mustUTC(t, "2024-03-01T09:00:00Z"), *next)
	})
}

func TestNextExecutionIdempotent(t *testing.T) {
	ref := mustUTC(t, "2024-01-01T10:00:00Z")
	s := &model.Scheduling{
		Enabled:        true,
		Interval:       model.IntervalWeekly,
		ExecutionTime:  model.TimeOfDay{Hour: 14, Minute: 30},
		IntervalConfig: model.IntervalConfig{DaysOfWeek: []string{"monday", "friday"}},
	}

	first, err := NextExecution(s, ref)
	require.NoError(t, err)
	second, err := NextExecution(s, ref)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
