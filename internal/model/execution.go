package model

// ExecutionStatus is the outcome of one template run.
type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailed  ExecutionStatus = "failed"
	ExecutionPartial ExecutionStatus = "partial"
)

// Execution is one record of an attempted scheduled or manual run.
type Execution struct {
	ID               string            `json:"id"`
	Timestamp        int64             `json:"timestamp"` // epoch milliseconds
	Status           ExecutionStatus   `json:"status"`
	CreatedExpenseID string            `json:"createdExpenseId,omitempty"`
	Error            string            `json:"error,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// QueueStatus is the lifecycle state of a scheduling queue entry.
type QueueStatus string

const (
	QueuePending QueueStatus = "pending"
	QueueRunning QueueStatus = "running"
	QueueFailed  QueueStatus = "failed"
)

// QueueEntry is one armed schedule in the scheduling queue. The queue holds
// at most one entry per template id.
type QueueEntry struct {
	TemplateID   string      `json:"templateId"`
	ScheduledFor int64       `json:"scheduledFor"` // epoch milliseconds
	Status       QueueStatus `json:"status"`
	Attempts     int         `json:"attempts"`
	LastAttempt  *int64      `json:"lastAttempt,omitempty"`
	Error        string      `json:"error,omitempty"`
}
