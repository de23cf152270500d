// Package engine orchestrates the template lifecycle: validated
// create/update/delete, scheduling mutation coordinated with the timer
// scheduler, and the recurring execution loop.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/xtendabl/expensabl/internal/common"
	"github.com/xtendabl/expensabl/internal/model"
	"github.com/xtendabl/expensabl/internal/service"
)

// CreateTemplateInput carries validated user input for template creation.
type CreateTemplateInput struct {
	Name            string   `validate:"required,min=1,max=100"`
	Amount          float64  `validate:"gt=0"`
	Currency        string   `validate:"required,len=3,alpha"`
	Merchant        string   `validate:"required"`
	Date            string   `validate:"omitempty,datetime=2006-01-02"`
	Description     string   `validate:"max=500"`
	Category        string   `validate:"max=100"`
	Tags            []string `validate:"max=10,dive,min=1,max=50"`
	Favorite        bool
	SourceExpenseID string
}

// TemplateManager validates input and coordinates the repository with the
// scheduling engine. Repository writes always happen first; timer arm and
// disarm follow in sequence.
type TemplateManager struct {
	store     service.TemplateStore
	scheduler service.Scheduler
	validate  *validator.Validate
	now       func() time.Time
}

// ManagerOption configures a TemplateManager.
type ManagerOption func(*TemplateManager)

// WithManagerClock overrides the manager clock for tests.
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *TemplateManager) { m.now = now }
}

// NewTemplateManager creates a template manager.
func NewTemplateManager(store service.TemplateStore, scheduler service.Scheduler, opts ...ManagerOption) *TemplateManager {
	m := &TemplateManager{
		store:     store,
		scheduler: scheduler,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateTemplate validates the input and persists a new template.
func (m *TemplateManager) CreateTemplate(ctx context.Context, in CreateTemplateInput) (*model.Template, error) {
	if err := m.validate.Struct(in); err != nil {
		return nil, common.NewUserError("invalid template", err)
	}

	t := &model.Template{
		Name: in.Name,
		ExpenseData: model.ExpenseData{
			Amount:      in.Amount,
			Currency:    in.Currency,
			Merchant:    in.Merchant,
			Date:        in.Date,
			Description: in.Description,
			Category:    in.Category,
		},
		Metadata: model.Metadata{
			Source:   model.SourceManual,
			Tags:     in.Tags,
			Favorite: in.Favorite,
		},
	}
	if in.SourceExpenseID != "" {
		t.Metadata.Source = model.SourceExpense
		t.Metadata.SourceExpenseID = in.SourceExpenseID
	}

	if err := m.store.Create(ctx, t); err != nil {
		return nil, err
	}
	slog.Info("template created", "id", t.ID, "name", t.Name, "source", t.Metadata.Source)
	return t, nil
}

// UpdateTemplate validates and applies a partial update.
func (m *TemplateManager) UpdateTemplate(ctx context.Context, id string, update model.TemplateUpdate) (*model.Template, error) {
	if update.Name != nil {
		if err := m.validate.Var(*update.Name, "required,min=1,max=100"); err != nil {
			return nil, common.NewUserError("invalid template name", err)
		}
	}
	if update.Tags != nil {
		if err := m.validate.Var(*update.Tags, "max=10,dive,min=1,max=50"); err != nil {
			return nil, common.NewUserError("invalid tags", err)
		}
	}
	return m.store.Update(ctx, id, update)
}

// DeleteTemplate removes a template and disarms any timer for it.
func (m *TemplateManager) DeleteTemplate(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	if err := m.scheduler.CancelTemplateAlarm(ctx, id); err != nil {
		return fmt.Errorf("template deleted but alarm cancel failed: %w", err)
	}
	return nil
}

// SetScheduling replaces a template's scheduling configuration and arms or
// disarms the scheduler to match.
func (m *TemplateManager) SetScheduling(ctx context.Context, id string, s *model.Scheduling) (*model.Template, error) {
	updated, err := m.store.UpdateScheduling(ctx, id, s)
	if err != nil {
		return nil, err
	}
	if err := m.syncScheduler(ctx, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// PauseScheduling suspends an enabled schedule without losing its
// configuration.
func (m *TemplateManager) PauseScheduling(ctx context.Context, id string) (*model.Template, error) {
	return m.setPaused(ctx, id, true)
}

// ResumeScheduling reactivates a paused schedule; the next execution is
// recomputed from now.
func (m *TemplateManager) ResumeScheduling(ctx context.Context, id string) (*model.Template, error) {
	return m.setPaused(ctx, id, false)
}

func (m *TemplateManager) setPaused(ctx context.Context, id string, paused bool) (*model.Template, error) {
	t, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("%w: %s", common.ErrNotFound, id)
	}
	if t.Scheduling == nil || !t.Scheduling.Enabled {
		return nil, fmt.Errorf("%w: template %s has no enabled schedule", common.ErrInvalidSchedule, id)
	}

	s := t.Scheduling.Clone()
	s.Paused = paused
	return m.SetScheduling(ctx, id, s)
}

// RunNow executes a template manually through the given executor and
// records the outcome.
func (m *TemplateManager) RunNow(ctx context.Context, id string, executor service.Executor) (*model.Execution, error) {
	t, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("%w: %s", common.ErrNotFound, id)
	}

	exec := model.Execution{Timestamp: model.TimeToMillis(m.now())}
	expenseID, execErr := executor.Execute(ctx, t)
	if execErr != nil {
		exec.Status = model.ExecutionFailed
		exec.Error = execErr.Error()
	} else {
		exec.Status = model.ExecutionSuccess
		exec.CreatedExpenseID = expenseID
	}

	if _, err := m.store.RecordExecution(ctx, id, exec); err != nil {
		return nil, err
	}
	return &exec, nil
}

func (m *TemplateManager) syncScheduler(ctx context.Context, t *model.Template) error {
	armed := t.Scheduling != nil && t.Scheduling.Enabled && !t.Scheduling.Paused &&
		t.Scheduling.NextExecution != nil
	if armed {
		return m.scheduler.ScheduleTemplate(ctx, t)
	}
	return m.scheduler.CancelTemplateAlarm(ctx, t.ID)
}
