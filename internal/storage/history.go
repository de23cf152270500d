package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/xtendabl/expensabl/internal/common"
	"github.com/xtendabl/expensabl/internal/model"
	"github.com/xtendabl/expensabl/internal/schedule"
)

// ScheduledTrigger marks an execution record as having come from the
// scheduler rather than a manual run. Set it in Execution.Metadata under
// the "trigger" key.
const ScheduledTrigger = "scheduled"

// RecordExecution appends one execution record to the template's history
// log (oldest first, capped at model.MaxHistoryEntries with the oldest
// entries evicted), bumps the usage counters, recomputes the next
// execution, and reconciles the queue entry, all in one transaction.
// Returns the updated template.
func (r *TemplateRepository) RecordExecution(ctx context.Context, id string, exec model.Execution) (*model.Template, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	now := r.now()
	if exec.ID == "" {
		exec.ID = uuid.NewString()
	}
	if exec.Timestamp == 0 {
		exec.Timestamp = model.TimeToMillis(now)
	}

	var updated *model.Template
	err := r.txm.Execute(ctx, func(tx *Tx) error {
		t, err := getValue[model.Template](ctx, tx, TemplateKey(id))
		if err != nil {
			return err
		}
		if t == nil {
			return fmt.Errorf("%w: %s", common.ErrNotFound, id)
		}

		history, err := getValue[[]model.Execution](ctx, tx, HistoryKey(id))
		if err != nil {
			return err
		}
		var log []model.Execution
		if history != nil {
			log = *history
		}
		log = append(log, exec)
		if len(log) > model.MaxHistoryEntries {
			log = log[len(log)-model.MaxHistoryEntries:]
		}
		if err := tx.SetJSON(HistoryKey(id), log); err != nil {
			return err
		}

		t.Metadata.UseCount++
		t.Metadata.LastUsed = exec.Timestamp
		if exec.Metadata["trigger"] == ScheduledTrigger {
			t.Metadata.ScheduledUseCount++
		}

		if err := r.reconcileAfterRun(ctx, tx, t, exec, now); err != nil {
			return err
		}
		t.UpdatedAt = r.bumpUpdatedAt(t.UpdatedAt)

		idx, err := r.loadIndex(ctx, tx)
		if err != nil {
			return err
		}
		idx[id] = t.Summary()

		if err := tx.SetJSON(TemplateKey(id), t); err != nil {
			return err
		}
		if err := tx.SetJSON(KeyMetadataIndex, idx); err != nil {
			return err
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("recorded execution", "id", id, "status", exec.Status)
	return updated, nil
}

// reconcileAfterRun recomputes the next execution for a scheduled template
// and updates its queue entry: the scheduled-for instant moves forward, a
// successful run resets attempts, and a failed run records the attempt and
// error. A schedule with no further executions loses its queue entry.
func (r *TemplateRepository) reconcileAfterRun(ctx context.Context, tx *Tx, t *model.Template, exec model.Execution, now time.Time) error {
	if t.Scheduling == nil || !t.Scheduling.Enabled {
		return nil
	}

	nextTime, err := schedule.NextExecution(t.Scheduling, now)
	if err != nil {
		return err
	}
	var next *int64
	if nextTime != nil {
		ms := model.TimeToMillis(*nextTime)
		next = &ms
	}
	t.Scheduling.NextExecution = next

	queue, err := r.loadQueue(ctx, tx)
	if err != nil {
		return err
	}
	i := queue.find(t.ID)

	if next == nil {
		if i >= 0 {
			queue = append(queue[:i], queue[i+1:]...)
			return tx.SetJSON(KeySchedulingQueue, queue)
		}
		return nil
	}

	entry := model.QueueEntry{
		TemplateID:   t.ID,
		ScheduledFor: *next,
		Status:       model.QueuePending,
		LastAttempt:  &exec.Timestamp,
	}
	if exec.Status == model.ExecutionFailed {
		entry.Error = exec.Error
		if i >= 0 {
			entry.Attempts = queue[i].Attempts + 1
		} else {
			entry.Attempts = 1
		}
	}
	if i >= 0 {
		queue[i] = entry
	} else {
		queue = append(queue, entry)
	}
	return tx.SetJSON(KeySchedulingQueue, queue)
}

// GetHistory returns the retained execution log for a template, oldest
// first. Unknown ids return an empty log.
func (r *TemplateRepository) GetHistory(ctx context.Context, id string) ([]model.Execution, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	history, err := readValue[[]model.Execution](ctx, r, HistoryKey(id))
	if err != nil {
		return nil, err
	}
	if history == nil {
		return []model.Execution{}, nil
	}
	return *history, nil
}

// DueEntries returns the queue entries whose scheduled time is at or before
// now, in queue order.
func (r *TemplateRepository) DueEntries(ctx context.Context, now time.Time) ([]model.QueueEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	queue, err := readValue[schedulingQueue](ctx, r, KeySchedulingQueue)
	if err != nil {
		return nil, err
	}
	if queue == nil {
		return nil, nil
	}

	nowMs := model.TimeToMillis(now)
	var due []model.QueueEntry
	for _, e := range *queue {
		if e.ScheduledFor <= nowMs && e.Status != model.QueueRunning {
			due = append(due, e)
		}
	}
	return due, nil
}

// GetPreferences returns the stored user preferences, or defaults when
// none have been written.
func (r *TemplateRepository) GetPreferences(ctx context.Context) (*model.Preferences, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	prefs, err := readValue[model.Preferences](ctx, r, KeyPreferences)
	if err != nil {
		return nil, err
	}
	if prefs == nil {
		return &model.Preferences{DefaultPageSize: DefaultPageSize}, nil
	}
	return prefs, nil
}

// SetPreferences writes the user preference record whole.
func (r *TemplateRepository) SetPreferences(ctx context.Context, prefs *model.Preferences) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if prefs == nil {
		return fmt.Errorf("preferences cannot be nil")
	}
	return r.txm.Execute(ctx, func(tx *Tx) error {
		return tx.SetJSON(KeyPreferences, prefs)
	})
}
