package storage

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtendabl/expensabl/internal/common"
)

func TestMemoryProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("get returns nil for missing keys", func(t *testing.T) {
		p := NewMemoryProvider()
		v, err := p.Get(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("set and remove are bulk operations", func(t *testing.T) {
		p := NewMemoryProvider()
		require.NoError(t, p.Set(ctx, map[string]json.RawMessage{
			"a": json.RawMessage("1"),
			"b": json.RawMessage("2"),
		}))
		assert.Equal(t, 2, p.Len())

		require.NoError(t, p.Remove(ctx, []string{"a", "b", "never-existed"}))
		assert.Equal(t, 0, p.Len())
	})

	t.Run("stored values are copies", func(t *testing.T) {
		p := NewMemoryProvider()
		v := json.RawMessage(`"original"`)
		require.NoError(t, p.Set(ctx, map[string]json.RawMessage{"k": v}))

		// mutating the caller's slice must not reach the store
		copy(v, `"mutated!"`)

		got, err := p.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, json.RawMessage(`"original"`), got)
	})

	t.Run("unavailable store fails every call", func(t *testing.T) {
		p := NewMemoryProvider()
		p.Unavailable = true

		assert.False(t, p.IsAvailable(ctx))
		_, err := p.Get(ctx, "k")
		assert.ErrorIs(t, err, common.ErrStorageUnavailable)
		err = p.Set(ctx, map[string]json.RawMessage{"k": json.RawMessage("1")})
		assert.ErrorIs(t, err, common.ErrStorageUnavailable)
	})

	t.Run("quota is enforced before anything is applied", func(t *testing.T) {
		p := NewMemoryProvider()
		p.MaxBytes = 10

		err := p.Set(ctx, map[string]json.RawMessage{
			"k": json.RawMessage(`"a very long value"`),
		})
		assert.ErrorIs(t, err, common.ErrQuotaExceeded)
		assert.Equal(t, 0, p.Len())
	})
}
