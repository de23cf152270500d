// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/xtendabl/expensabl/internal/model"
)

// TemplateStore defines the contract for the template persistence layer.
type TemplateStore interface {
	// Template operations
	Create(ctx context.Context, template *model.Template) error
	Get(ctx context.Context, id string) (*model.Template, error)
	Update(ctx context.Context, id string, update model.TemplateUpdate) (*model.Template, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, opts model.ListOptions) (*model.ListResult, error)
	Count(ctx context.Context) (int, error)

	// Scheduling operations
	UpdateScheduling(ctx context.Context, id string, scheduling *model.Scheduling) (*model.Template, error)
	DueEntries(ctx context.Context, now time.Time) ([]model.QueueEntry, error)

	// Execution history
	RecordExecution(ctx context.Context, id string, execution model.Execution) (*model.Template, error)
	GetHistory(ctx context.Context, id string) ([]model.Execution, error)

	// Preferences
	GetPreferences(ctx context.Context) (*model.Preferences, error)
	SetPreferences(ctx context.Context, prefs *model.Preferences) error
}

// Scheduler arms and disarms execution timers for scheduled templates. The
// repository never calls this directly; the template manager coordinates
// repository writes with scheduler arm/disarm in sequence.
type Scheduler interface {
	ScheduleTemplate(ctx context.Context, template *model.Template) error
	CancelTemplateAlarm(ctx context.Context, templateID string) error
}

// Executor performs one expense creation from a template and returns the
// id of the created expense.
type Executor interface {
	Execute(ctx context.Context, template *model.Template) (string, error)
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
