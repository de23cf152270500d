package storage

import (
	"context"
	"fmt"
)

// validateContext ensures a context is provided.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("context cannot be nil")
	}
	return nil
}

// validateString ensures a required string field is non-empty.
func validateString(value, field string) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty", field)
	}
	return nil
}
