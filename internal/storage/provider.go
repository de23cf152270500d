// Package storage implements the template persistence core: a flat
// key-value provider abstraction, a buffered transaction layer that fakes
// multi-key atomicity on top of it, and the template repository.
package storage

import (
	"context"
	"encoding/json"
)

// Key namespace in the flat key-value store. These must match any
// previously stored data exactly.
const (
	KeyMetadataIndex   = "template.metadata.index"
	KeySchedulingQueue = "template.scheduling.queue"
	KeyPreferences     = "template.preferences"

	templateKeyPrefix = "template."
	historyKeyPrefix  = "template.history."
)

// TemplateKey returns the storage key for a template record.
func TemplateKey(id string) string {
	return templateKeyPrefix + id
}

// HistoryKey returns the storage key for a template's execution history.
func HistoryKey(id string) string {
	return historyKeyPrefix + id
}

// Provider is the contract for the backing key-value store. Values are
// JSON-encoded bytes; both implementations copy on read and write, so a
// caller mutating a value after storing it never affects the stored copy.
//
// Any failure means "operation not applied": a single Set or Remove call is
// atomic for the keys it was given.
type Provider interface {
	// Get returns the value at key, or nil if the key is absent.
	Get(ctx context.Context, key string) (json.RawMessage, error)
	// Set upserts every given key, last-write-wins per key, as one atomic
	// bulk write.
	Set(ctx context.Context, values map[string]json.RawMessage) error
	// Remove deletes the given keys as one atomic bulk write. Missing keys
	// are ignored.
	Remove(ctx context.Context, keys []string) error
	// IsAvailable reports whether the backing store is reachable.
	IsAvailable(ctx context.Context) bool
}

func cloneRaw(v json.RawMessage) json.RawMessage {
	if v == nil {
		return nil
	}
	return append(json.RawMessage(nil), v...)
}
