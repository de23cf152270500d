package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xtendabl/expensabl/internal/common"
)

// MemoryProvider is an in-memory Provider used by tests and ephemeral
// contexts. It mirrors the persistent provider's copy semantics and can
// inject failures for atomicity tests.
type MemoryProvider struct {
	mu   sync.RWMutex
	data map[string]json.RawMessage

	// FailSets and FailRemoves, when non-nil, make the corresponding call
	// fail without applying anything.
	FailSets    error
	FailRemoves error
	// Unavailable makes IsAvailable report false and every call fail.
	Unavailable bool
	// MaxBytes, when > 0, bounds the total stored value size.
	MaxBytes int64
}

// NewMemoryProvider creates an empty in-memory provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{data: make(map[string]json.RawMessage)}
}

func (m *MemoryProvider) Get(ctx context.Context, key string) (json.RawMessage, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Unavailable {
		return nil, common.ErrStorageUnavailable
	}
	v, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return cloneRaw(v), nil
}

func (m *MemoryProvider) Set(ctx context.Context, values map[string]json.RawMessage) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Unavailable {
		return common.ErrStorageUnavailable
	}
	if m.FailSets != nil {
		return m.FailSets
	}
	if m.MaxBytes > 0 {
		var total int64
		for k, v := range m.data {
			if _, replaced := values[k]; replaced {
				continue
			}
			total += int64(len(v))
		}
		for _, v := range values {
			total += int64(len(v))
		}
		if total > m.MaxBytes {
			return fmt.Errorf("%w: %d bytes exceeds limit of %d", common.ErrQuotaExceeded, total, m.MaxBytes)
		}
	}
	for k, v := range values {
		m.data[k] = cloneRaw(v)
	}
	return nil
}

func (m *MemoryProvider) Remove(ctx context.Context, keys []string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Unavailable {
		return common.ErrStorageUnavailable
	}
	if m.FailRemoves != nil {
		return m.FailRemoves
	}
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *MemoryProvider) IsAvailable(ctx context.Context) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.Unavailable
}

// Len reports the number of stored keys.
func (m *MemoryProvider) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
