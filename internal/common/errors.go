// Package common provides shared utilities and types used across the application.
package common

import (
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Repository errors.
	ErrNotFound      = errors.New("template not found")
	ErrLimitExceeded = errors.New("template limit exceeded")

	// Schedule errors.
	ErrInvalidSchedule = errors.New("invalid schedule configuration")

	// Storage errors.
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrQuotaExceeded      = errors.New("storage quota exceeded")

	// ErrTransactionFinalized indicates an operation on an already committed
	// or rolled back transaction. If it surfaces at runtime the caller has a
	// defect; it is not a business error.
	ErrTransactionFinalized = errors.New("transaction already finalized")
)

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}
