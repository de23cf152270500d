package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/xtendabl/expensabl/internal/common"
	"github.com/xtendabl/expensabl/internal/model"
	"github.com/xtendabl/expensabl/internal/service"
	"github.com/xtendabl/expensabl/internal/storage"
)

const defaultCheckInterval = time.Minute

// QueueScheduler fires scheduled templates from the persisted scheduling
// queue. The queue itself is the source of truth for what is armed, so
// ScheduleTemplate and CancelTemplateAlarm only need to nudge the loop;
// a restart picks up exactly where the queue says it should.
type QueueScheduler struct {
	store         service.TemplateStore
	executor      service.Executor
	checkInterval time.Duration
	notifyCh      chan struct{}
	now           func() time.Time
	retry         service.RetryOptions
}

// SchedulerOption configures a QueueScheduler.
type SchedulerOption func(*QueueScheduler)

// WithCheckInterval overrides the queue poll interval.
func WithCheckInterval(d time.Duration) SchedulerOption {
	return func(s *QueueScheduler) { s.checkInterval = d }
}

// WithSchedulerClock overrides the scheduler clock for tests.
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *QueueScheduler) { s.now = now }
}

// NewQueueScheduler creates a scheduler over the given store and executor.
func NewQueueScheduler(store service.TemplateStore, executor service.Executor, opts ...SchedulerOption) *QueueScheduler {
	s := &QueueScheduler{
		store:         store,
		executor:      executor,
		checkInterval: defaultCheckInterval,
		notifyCh:      make(chan struct{}, 1),
		now:           time.Now,
		retry:         service.RetryOptions{MaxAttempts: 2},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Notify triggers an immediate queue check. Non-blocking if a check is
// already pending.
func (s *QueueScheduler) Notify() {
	select {
	case s.notifyCh <- struct{}{}:
	default:
	}
}

// ScheduleTemplate arms a template. The repository has already written the
// queue entry; this wakes the loop so a near-term execution is not delayed
// by a full poll interval.
func (s *QueueScheduler) ScheduleTemplate(_ context.Context, t *model.Template) error {
	slog.Debug("armed template schedule", "id", t.ID, "nextExecution", t.Scheduling.NextExecution)
	s.Notify()
	return nil
}

// CancelTemplateAlarm disarms a template. The repository has already
// removed the queue entry, so there is no timer state to tear down.
func (s *QueueScheduler) CancelTemplateAlarm(_ context.Context, templateID string) error {
	slog.Debug("disarmed template schedule", "id", templateID)
	return nil
}

// Start runs the scheduling loop until ctx is canceled.
func (s *QueueScheduler) Start(ctx context.Context) {
	slog.Info("scheduler started", "checkInterval", s.checkInterval)
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.processDue(ctx)
		case <-s.notifyCh:
			s.processDue(ctx)
		}
	}
}

// processDue executes every queue entry whose time has come and records
// the outcomes; the repository re-arms or retires each entry as part of
// recording.
func (s *QueueScheduler) processDue(ctx context.Context) {
	due, err := s.store.DueEntries(ctx, s.now())
	if err != nil {
		common.LogError(err, "failed to read scheduling queue", nil)
		return
	}

	for _, entry := range due {
		if ctx.Err() != nil {
			return
		}
		s.fire(ctx, entry)
	}
}

func (s *QueueScheduler) fire(ctx context.Context, entry model.QueueEntry) {
	t, err := s.store.Get(ctx, entry.TemplateID)
	if err != nil {
		common.LogError(err, "failed to load scheduled template", common.Fields{"id": entry.TemplateID})
		return
	}
	if t == nil || t.Scheduling == nil || !t.Scheduling.Enabled || t.Scheduling.Paused {
		// stale entry; nothing to run
		return
	}

	exec := model.Execution{
		Timestamp: model.TimeToMillis(s.now()),
		Metadata:  map[string]string{"trigger": storage.ScheduledTrigger},
	}

	var expenseID string
	execErr := common.WithRetry(ctx, func() error {
		var err error
		expenseID, err = s.executor.Execute(ctx, t)
		return err
	}, s.retry)

	if execErr != nil {
		exec.Status = model.ExecutionFailed
		exec.Error = execErr.Error()
		common.LogError(execErr, "scheduled execution failed", common.Fields{"id": t.ID})
	} else {
		exec.Status = model.ExecutionSuccess
		exec.CreatedExpenseID = expenseID
		slog.Info("scheduled execution succeeded", "id", t.ID, "expenseId", expenseID)
	}

	if _, err := s.store.RecordExecution(ctx, t.ID, exec); err != nil {
		common.LogError(err, "failed to record execution", common.Fields{"id": t.ID})
	}
}
