package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xtendabl/expensabl/internal/common"
)

// OpKind identifies a buffered transaction operation.
type OpKind int

const (
	OpSet OpKind = iota
	OpRemove
	OpIncrement
	OpDecrement
)

// Operation is one buffered storage operation, exposed for introspection
// and tests via GetOperations.
type Operation struct {
	Kind  OpKind
	Key   string
	Value json.RawMessage
	Delta int64
}

type txState int

const (
	txActive txState = iota
	txCommitted
	txRolledBack
)

// Tx buffers set/remove/increment/decrement operations against the provider
// and commits them as one best-effort atomic batch. It offers read-your-writes
// isolation: a Get inside the transaction observes buffered writes before
// anything is persisted. A Tx belongs to a single logical flow; it is not
// safe for concurrent use.
type Tx struct {
	provider Provider
	cache    *Cache
	ops      []Operation
	touched  map[string]struct{}
	state    txState
}

func (t *Tx) check() error {
	if t.state != txActive {
		return common.ErrTransactionFinalized
	}
	return nil
}

func (t *Tx) touch(key string) {
	t.touched[key] = struct{}{}
}

// Get resolves a key against the buffered operations first, then the shared
// read cache, then the provider. Resolution order: the last buffered set
// wins; pending counter deltas are applied to a fresh provider read of the
// base value (deliberately bypassing the read cache so a stale cached base
// is never double-counted); a pending remove reads as absent; otherwise the
// cache and finally the provider serve the read.
func (t *Tx) Get(ctx context.Context, key string) (json.RawMessage, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var (
		hasDelta  bool
		netDelta  int64
		hasRemove bool
	)
	for i := len(t.ops) - 1; i >= 0; i-- {
		op := t.ops[i]
		if op.Key != key {
			continue
		}
		switch op.Kind {
		case OpSet:
			return cloneRaw(op.Value), nil
		case OpIncrement, OpDecrement:
			hasDelta = true
			netDelta += op.Delta
		case OpRemove:
			hasRemove = true
		}
	}

	if hasDelta {
		base, err := t.counterBase(ctx, key)
		if err != nil {
			return nil, err
		}
		return json.RawMessage(fmt.Sprintf("%d", base+netDelta)), nil
	}
	if hasRemove {
		return nil, nil
	}

	if v, ok := t.cache.Get(key); ok {
		return v, nil
	}
	v, err := t.provider.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if v != nil {
		t.cache.Set(key, v)
		t.touch(key)
	}
	return v, nil
}

// counterBase reads the current numeric value for key straight from the
// provider. Absent keys count as zero.
func (t *Tx) counterBase(ctx context.Context, key string) (int64, error) {
	raw, err := t.provider.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if raw == nil {
		return 0, nil
	}
	var base int64
	if err := json.Unmarshal(raw, &base); err != nil {
		return 0, fmt.Errorf("key %q does not hold a counter: %w", key, err)
	}
	return base, nil
}

// Set buffers an upsert. Nothing touches storage until Commit.
func (t *Tx) Set(key string, value json.RawMessage) error {
	if err := t.check(); err != nil {
		return err
	}
	t.ops = append(t.ops, Operation{Kind: OpSet, Key: key, Value: cloneRaw(value)})
	t.touch(key)
	return nil
}

// SetJSON marshals v and buffers the upsert.
func (t *Tx) SetJSON(key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode value for key %q: %w", key, err)
	}
	return t.Set(key, b)
}

// Remove buffers a delete.
func (t *Tx) Remove(key string) error {
	if err := t.check(); err != nil {
		return err
	}
	t.ops = append(t.ops, Operation{Kind: OpRemove, Key: key})
	t.touch(key)
	return nil
}

// Increment buffers a +1 counter delta for key.
func (t *Tx) Increment(key string) error {
	if err := t.check(); err != nil {
		return err
	}
	t.ops = append(t.ops, Operation{Kind: OpIncrement, Key: key, Delta: 1})
	t.touch(key)
	return nil
}

// Decrement buffers a -1 counter delta for key.
func (t *Tx) Decrement(key string) error {
	if err := t.check(); err != nil {
		return err
	}
	t.ops = append(t.ops, Operation{Kind: OpDecrement, Key: key, Delta: -1})
	t.touch(key)
	return nil
}

// GetOperations returns a copy of the buffered operation list.
func (t *Tx) GetOperations() []Operation {
	ops := make([]Operation, len(t.ops))
	copy(ops, t.ops)
	return ops
}

type resolvedOp struct {
	remove bool
	delta  bool
	value  json.RawMessage
	net    int64
}

// Commit folds the buffer into one final sets map and one removes list
// (last operation per key wins; counter deltas resolve against one provider
// read each), issues at most one Set and one Remove call to the provider,
// and invalidates the read cache for every affected key. A provider failure
// surfaces unmodified and the transaction never reaches Committed.
func (t *Tx) Commit(ctx context.Context) error {
	if err := t.check(); err != nil {
		return err
	}
	if err := validateContext(ctx); err != nil {
		return err
	}

	resolved := make(map[string]*resolvedOp)
	order := make([]string, 0, len(t.ops))
	for _, op := range t.ops {
		r, ok := resolved[op.Key]
		if !ok {
			r = &resolvedOp{}
			resolved[op.Key] = r
			order = append(order, op.Key)
		}
		switch op.Kind {
		case OpSet:
			*r = resolvedOp{value: cloneRaw(op.Value)}
		case OpRemove:
			*r = resolvedOp{remove: true}
		case OpIncrement, OpDecrement:
			switch {
			case r.delta:
				r.net += op.Delta
			case r.remove:
				// delete-then-count restarts the counter from zero
				*r = resolvedOp{value: json.RawMessage(fmt.Sprintf("%d", op.Delta))}
			case r.value != nil:
				var base int64
				if err := json.Unmarshal(r.value, &base); err != nil {
					return fmt.Errorf("key %q does not hold a counter: %w", op.Key, err)
				}
				r.value = json.RawMessage(fmt.Sprintf("%d", base+op.Delta))
			default:
				*r = resolvedOp{delta: true, net: op.Delta}
			}
		}
	}

	sets := make(map[string]json.RawMessage)
	var removes []string
	for _, key := range order {
		r := resolved[key]
		switch {
		case r.remove:
			removes = append(removes, key)
		case r.delta:
			base, err := t.counterBase(ctx, key)
			if err != nil {
				return err
			}
			sets[key] = json.RawMessage(fmt.Sprintf("%d", base+r.net))
		default:
			sets[key] = r.value
		}
	}

	if len(sets) > 0 {
		if err := t.provider.Set(ctx, sets); err != nil {
			return err
		}
	}
	if len(removes) > 0 {
		if err := t.provider.Remove(ctx, removes); err != nil {
			return err
		}
	}

	t.cache.InvalidateKeys(order)

	t.state = txCommitted
	return nil
}

// Rollback discards all buffered operations and invalidates every key this
// transaction touched in the shared read cache. The provider is never
// contacted: nothing was written yet.
func (t *Tx) Rollback() error {
	if err := t.check(); err != nil {
		return err
	}
	t.ops = nil
	affected := make([]string, 0, len(t.touched))
	for k := range t.touched {
		affected = append(affected, k)
	}
	t.cache.InvalidateKeys(affected)
	t.state = txRolledBack
	return nil
}

// Manager creates transactions over one provider and shared read cache.
type Manager struct {
	provider Provider
	cache    *Cache
}

// NewManager creates a transaction manager.
func NewManager(provider Provider, cache *Cache) *Manager {
	if cache == nil {
		cache = NewCache()
	}
	return &Manager{provider: provider, cache: cache}
}

// Begin returns a fresh active transaction.
func (m *Manager) Begin() *Tx {
	return &Tx{
		provider: m.provider,
		cache:    m.cache,
		touched:  make(map[string]struct{}),
	}
}

// Execute begins a transaction, runs fn, commits on normal return, and
// rolls back and rethrows on any error from fn or the commit. This is the
// only sanctioned way application code uses the transaction primitive; it
// guarantees no transaction is ever left dangling.
func (m *Manager) Execute(ctx context.Context, fn func(tx *Tx) error) error {
	tx := m.Begin()
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return nil
}

// getValue reads and decodes a JSON value through a transaction. Returns
// nil without error when the key is absent.
func getValue[T any](ctx context.Context, tx *Tx, key string) (*T, error) {
	raw, err := tx.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("failed to decode key %q: %w", key, err)
	}
	return &v, nil
}
