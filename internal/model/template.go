// Package model defines the core domain types for expense templates.
package model

import "time"

// SchemaVersion is written into every stored template record.
const SchemaVersion = "1.0"

// Bounds enforced by the storage core. These must match any previously
// stored data exactly.
const (
	MaxTemplates         = 100
	MaxNameLength        = 100
	MaxHistoryEntries    = 50
	MaxTagsPerTemplate   = 10
	MaxTagLength         = 50
	MinCustomInterval    = 5 * time.Minute
	MaxCustomInterval    = 365 * 24 * time.Hour
)

// TemplateSource records where a template came from.
type TemplateSource string

const (
	SourceManual  TemplateSource = "manual"
	SourceExpense TemplateSource = "expense"
)

// Template is the unit of reuse for expense creation.
type Template struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	CreatedAt   int64       `json:"createdAt"` // epoch milliseconds
	UpdatedAt   int64       `json:"updatedAt"` // epoch milliseconds
	Version     string      `json:"version"`
	ExpenseData ExpenseData `json:"expenseData"`
	Scheduling  *Scheduling `json:"scheduling,omitempty"`
	Metadata    Metadata    `json:"metadata"`
}

// ExpenseData mirrors the fields needed to create an expense. The storage
// core treats it as an opaque payload beyond structural validation.
type ExpenseData struct {
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Merchant    string  `json:"merchant"`
	Date        string  `json:"date,omitempty"`
	Description string  `json:"description,omitempty"`
	Category    string  `json:"category,omitempty"`
}

// Metadata tracks provenance and usage for a template.
type Metadata struct {
	Source            TemplateSource `json:"source"`
	SourceExpenseID   string         `json:"sourceExpenseId,omitempty"`
	Tags              []string       `json:"tags,omitempty"`
	Favorite          bool           `json:"favorite"`
	UseCount          int            `json:"useCount"`
	ScheduledUseCount int            `json:"scheduledUseCount"`
	LastUsed          int64          `json:"lastUsed,omitempty"` // epoch milliseconds
}

// TemplateSummary is the denormalized metadata-index projection of one
// template, used to serve list/sort/filter queries without loading the
// full record.
type TemplateSummary struct {
	Name          string   `json:"name"`
	CreatedAt     int64    `json:"createdAt"`
	UpdatedAt     int64    `json:"updatedAt"`
	HasScheduling bool     `json:"hasScheduling"`
	NextExecution *int64   `json:"nextExecution,omitempty"`
	LastUsed      int64    `json:"lastUsed,omitempty"`
	UseCount      int      `json:"useCount"`
	Tags          []string `json:"tags,omitempty"`
	Favorite      bool     `json:"favorite"`
}

// Summary builds the index projection for a template.
func (t *Template) Summary() TemplateSummary {
	s := TemplateSummary{
		Name:      t.Name,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
		LastUsed:  t.Metadata.LastUsed,
		UseCount:  t.Metadata.UseCount,
		Tags:      t.Metadata.Tags,
		Favorite:  t.Metadata.Favorite,
	}
	if t.Scheduling != nil && t.Scheduling.Enabled {
		s.HasScheduling = true
		s.NextExecution = t.Scheduling.NextExecution
	}
	return s
}

// TimeToMillis converts a time to epoch milliseconds.
func TimeToMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// MillisToTime converts epoch milliseconds to a time in the given location.
func MillisToTime(ms int64, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.UnixMilli(ms).In(loc)
}
