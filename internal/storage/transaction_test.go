package storage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtendabl/expensabl/internal/common"
)

func newTestManager(t *testing.T) (*Manager, *MemoryProvider, *Cache) {
	t.Helper()
	provider := NewMemoryProvider()
	cache := NewCache()
	return NewManager(provider, cache), provider, cache
}

func seed(t *testing.T, provider *MemoryProvider, key, value string) {
	t.Helper()
	err := provider.Set(context.Background(), map[string]json.RawMessage{
		key: json.RawMessage(value),
	})
	require.NoError(t, err)
}

func TestTransactionReadYourWrites(t *testing.T) {
	ctx := context.Background()
	m, provider, _ := newTestManager(t)

	tx := m.Begin()
	require.NoError(t, tx.Set("k", json.RawMessage(`"v"`)))

	got, err := tx.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage(`"v"`), got)

	// nothing persisted before commit
	assert.Equal(t, 0, provider.Len())

	require.NoError(t, tx.Commit(ctx))
	stored, err := provider.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage(`"v"`), stored)
}

func TestTransactionCounterResolution(t *testing.T) {
	ctx := context.Background()
	m, provider, _ := newTestManager(t)
	seed(t, provider, "k", "5")

	tx := m.Begin()
	require.NoError(t, tx.Increment("k"))
	require.NoError(t, tx.Increment("k"))
	require.NoError(t, tx.Decrement("k"))

	// read-your-writes observes the net delta before commit
	got, err := tx.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage("6"), got)

	require.NoError(t, tx.Commit(ctx))
	stored, err := provider.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage("6"), stored)
}

func TestTransactionCounterOnMissingKey(t *testing.T) {
	ctx := context.Background()
	m, provider, _ := newTestManager(t)

	tx := m.Begin()
	require.NoError(t, tx.Increment("counter"))
	require.NoError(t, tx.Commit(ctx))

	stored, err := provider.Get(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage("1"), stored)
}

func TestTransactionCounterBypassesReadCache(t *testing.T) {
	ctx := context.Background()
	m, provider, cache := newTestManager(t)
	seed(t, provider, "k", "5")

	// warm the cache with a soon-to-be-stale base
	tx := m.Begin()
	_, err := tx.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, cache.Has("k"))

	// the provider moves on underneath the cache
	seed(t, provider, "k", "10")

	require.NoError(t, tx.Increment("k"))
	got, err := tx.Get(ctx, "k")
	require.NoError(t, err)

	// counter math uses the fresh provider base, not the cached 5
	assert.Equal(t, json.RawMessage("11"), got)
}

func TestTransactionRollbackIsolation(t *testing.T) {
	ctx := context.Background()
	m, provider, _ := newTestManager(t)
	seed(t, provider, "k", `"before"`)

	tx := m.Begin()
	require.NoError(t, tx.Set("k", json.RawMessage(`"after"`)))
	require.NoError(t, tx.Set("other", json.RawMessage("1")))
	require.NoError(t, tx.Rollback())

	stored, err := provider.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage(`"before"`), stored)

	missing, err := provider.Get(ctx, "other")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestTransactionAtomicityOnProviderFailure(t *testing.T) {
	ctx := context.Background()
	m, provider, _ := newTestManager(t)
	seed(t, provider, "a", "1")

	provider.FailSets = errors.New("write failed")

	tx := m.Begin()
	require.NoError(t, tx.Set("a", json.RawMessage("2")))
	require.NoError(t, tx.Set("b", json.RawMessage("3")))

	err := tx.Commit(ctx)
	require.Error(t, err)

	// nothing applied
	stored, err := provider.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage("1"), stored)
	missing, err := provider.Get(ctx, "b")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestTransactionFinalized(t *testing.T) {
	ctx := context.Background()

	t.Run("after commit", func(t *testing.T) {
		m, _, _ := newTestManager(t)
		tx := m.Begin()
		require.NoError(t, tx.Set("k", json.RawMessage("1")))
		require.NoError(t, tx.Commit(ctx))

		assert.ErrorIs(t, tx.Set("k", json.RawMessage("2")), common.ErrTransactionFinalized)
		_, err := tx.Get(ctx, "k")
		assert.ErrorIs(t, err, common.ErrTransactionFinalized)
		assert.ErrorIs(t, tx.Commit(ctx), common.ErrTransactionFinalized)
		assert.ErrorIs(t, tx.Rollback(), common.ErrTransactionFinalized)
	})

	t.Run("after rollback", func(t *testing.T) {
		m, _, _ := newTestManager(t)
		tx := m.Begin()
		require.NoError(t, tx.Rollback())

		assert.ErrorIs(t, tx.Increment("k"), common.ErrTransactionFinalized)
		assert.ErrorIs(t, tx.Commit(ctx), common.ErrTransactionFinalized)
	})
}

func TestTransactionGetResolution(t *testing.T) {
	ctx := context.Background()

	t.Run("pending remove reads as absent", func(t *testing.T) {
		m, provider, _ := newTestManager(t)
		seed(t, provider, "k", `"v"`)

		tx := m.Begin()
		require.NoError(t, tx.Remove("k"))
		got, err := tx.Get(ctx, "k")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("last set wins over earlier set", func(t *testing.T) {
		m, _, _ := newTestManager(t)
		tx := m.Begin()
		require.NoError(t, tx.Set("k", json.RawMessage("1")))
		require.NoError(t, tx.Set("k", json.RawMessage("2")))
		got, err := tx.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, json.RawMessage("2"), got)
	})

	t.Run("remove then set commits the set", func(t *testing.T) {
		m, provider, _ := newTestManager(t)
		seed(t, provider, "k", `"old"`)

		tx := m.Begin()
		require.NoError(t, tx.Remove("k"))
		require.NoError(t, tx.Set("k", json.RawMessage(`"new"`)))
		require.NoError(t, tx.Commit(ctx))

		stored, err := provider.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, json.RawMessage(`"new"`), stored)
	})

	t.Run("set then remove commits the remove", func(t *testing.T) {
		m, provider, _ := newTestManager(t)
		seed(t, provider, "k", `"old"`)

		tx := m.Begin()
		require.NoError(t, tx.Set("k", json.RawMessage(`"new"`)))
		require.NoError(t, tx.Remove("k"))
		require.NoError(t, tx.Commit(ctx))

		stored, err := provider.Get(ctx, "k")
		require.NoError(t, err)
		assert.Nil(t, stored)
	})
}

func TestTransactionGetOperations(t *testing.T) {
	m, _, _ := newTestManager(t)
	tx := m.Begin()
	require.NoError(t, tx.Set("a", json.RawMessage("1")))
	require.NoError(t, tx.Increment("b"))
	require.NoError(t, tx.Remove("c"))

	ops := tx.GetOperations()
	require.Len(t, ops, 3)
	assert.Equal(t, OpSet, ops[0].Kind)
	assert.Equal(t, OpIncrement, ops[1].Kind)
	assert.Equal(t, OpRemove, ops[2].Kind)

	// the returned slice is a copy
	ops[0].Key = "mutated"
	assert.Equal(t, "a", tx.GetOperations()[0].Key)
}

func TestManagerExecute(t *testing.T) {
	ctx := context.Background()

	t.Run("commits on success", func(t *testing.T) {
		m, provider, _ := newTestManager(t)
		err := m.Execute(ctx, func(tx *Tx) error {
			return tx.Set("k", json.RawMessage("1"))
		})
		require.NoError(t, err)

		stored, err := provider.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, json.RawMessage("1"), stored)
	})

	t.Run("rolls back and rethrows on error", func(t *testing.T) {
		m, provider, _ := newTestManager(t)
		boom := errors.New("boom")
		err := m.Execute(ctx, func(tx *Tx) error {
			require.NoError(t, tx.Set("k", json.RawMessage("1")))
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 0, provider.Len())
	})

	t.Run("surfaces commit failure", func(t *testing.T) {
		m, provider, _ := newTestManager(t)
		failure := errors.New("quota blown")
		provider.FailSets = failure

		err := m.Execute(ctx, func(tx *Tx) error {
			return tx.Set("k", json.RawMessage("1"))
		})
		assert.ErrorIs(t, err, failure)
	})
}

func TestCommitInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	m, provider, cache := newTestManager(t)
	seed(t, provider, "k", "1")

	// warm the cache
	cache.Set("k", json.RawMessage("1"))

	tx := m.Begin()
	require.NoError(t, tx.Set("k", json.RawMessage("2")))
	require.NoError(t, tx.Commit(ctx))

	assert.False(t, cache.Has("k"))
}
