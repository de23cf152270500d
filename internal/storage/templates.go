package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/xtendabl/expensabl/internal/common"
	"github.com/xtendabl/expensabl/internal/model"
	"github.com/xtendabl/expensabl/internal/schedule"
)

// metadataIndex maps template id to its denormalized summary. It lives in
// one auxiliary key and must stay bijective with the set of template keys.
type metadataIndex map[string]model.TemplateSummary

// schedulingQueue is the ordered list of armed schedules, at most one entry
// per template id.
type schedulingQueue []model.QueueEntry

func (q schedulingQueue) find(templateID string) int {
	for i, e := range q {
		if e.TemplateID == templateID {
			return i
		}
	}
	return -1
}

// TemplateRepository is the domain-level persistence layer for templates.
// It maintains the per-template records, the metadata index, the execution
// history logs, and the scheduling queue; every mutating operation runs
// inside a single transaction so the four never diverge.
type TemplateRepository struct {
	provider     Provider
	txm          *Manager
	cache        *Cache
	now          func() time.Time
	maxTemplates int
}

// RepositoryOption configures a TemplateRepository.
type RepositoryOption func(*TemplateRepository)

// WithClock overrides the repository clock. Tests use this for
// deterministic timestamps.
func WithClock(now func() time.Time) RepositoryOption {
	return func(r *TemplateRepository) { r.now = now }
}

// WithMaxTemplates overrides the template count limit.
func WithMaxTemplates(limit int) RepositoryOption {
	return func(r *TemplateRepository) { r.maxTemplates = limit }
}

// NewTemplateRepository creates a repository over the given provider,
// transaction manager, and read cache. The manager and cache must wrap the
// same provider instance.
func NewTemplateRepository(provider Provider, txm *Manager, cache *Cache, opts ...RepositoryOption) *TemplateRepository {
	r := &TemplateRepository{
		provider:     provider,
		txm:          txm,
		cache:        cache,
		now:          time.Now,
		maxTemplates: model.MaxTemplates,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create persists a new template, its empty history log, and its metadata
// index entry in one transaction. A template arriving with enabled
// scheduling also gets its next execution computed and a queue entry armed,
// so the scheduling invariant holds from the first write. Fails with
// common.ErrLimitExceeded when the store already holds the maximum count.
func (r *TemplateRepository) Create(ctx context.Context, t *model.Template) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("template cannot be nil")
	}

	nowMs := model.TimeToMillis(r.now())
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt == 0 {
		t.CreatedAt = nowMs
	}
	if t.UpdatedAt < t.CreatedAt {
		t.UpdatedAt = t.CreatedAt
	}
	if t.Version == "" {
		t.Version = model.SchemaVersion
	}
	if t.Metadata.Source == "" {
		t.Metadata.Source = model.SourceManual
	}

	err := r.txm.Execute(ctx, func(tx *Tx) error {
		idx, err := r.loadIndex(ctx, tx)
		if err != nil {
			return err
		}
		if _, exists := idx[t.ID]; exists {
			return fmt.Errorf("template %s already exists", t.ID)
		}
		if len(idx) >= r.maxTemplates {
			return fmt.Errorf("%w: maximum of %d templates reached", common.ErrLimitExceeded, r.maxTemplates)
		}

		if err := r.applyScheduling(ctx, tx, t, t.Scheduling); err != nil {
			return err
		}

		if err := tx.SetJSON(TemplateKey(t.ID), t); err != nil {
			return err
		}
		if err := tx.SetJSON(HistoryKey(t.ID), []model.Execution{}); err != nil {
			return err
		}
		idx[t.ID] = t.Summary()
		return tx.SetJSON(KeyMetadataIndex, idx)
	})
	if err != nil {
		return err
	}

	slog.Debug("created template", "id", t.ID, "name", t.Name)
	return nil
}

// Get returns the template with the given id, or nil if absent. Reads are
// served from the read cache when possible; absence is never an error.
func (r *TemplateRepository) Get(ctx context.Context, id string) (*model.Template, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return readValue[model.Template](ctx, r, TemplateKey(id))
}

// Update merges a partial update into the stored template, bumps updatedAt
// strictly past its prior value, and writes the template together with its
// index entry in one transaction. Fails with common.ErrNotFound for an
// unknown id.
func (r *TemplateRepository) Update(ctx context.Context, id string, update model.TemplateUpdate) (*model.Template, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var updated *model.Template
	err := r.txm.Execute(ctx, func(tx *Tx) error {
		t, err := getValue[model.Template](ctx, tx, TemplateKey(id))
		if err != nil {
			return err
		}
		if t == nil {
			return fmt.Errorf("%w: %s", common.ErrNotFound, id)
		}

		update.Apply(t)
		t.UpdatedAt = r.bumpUpdatedAt(t.UpdatedAt)

		idx, err := r.loadIndex(ctx, tx)
		if err != nil {
			return err
		}
		idx[id] = t.Summary()

		if err := tx.SetJSON(TemplateKey(id), t); err != nil {
			return err
		}
		if err := tx.SetJSON(KeyMetadataIndex, idx); err != nil {
			return err
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("updated template", "id", id)
	return updated, nil
}

// Delete removes the template record, its history log, its index entry,
// and any queue entry in one transaction. Deleting an unknown id is a
// no-op.
func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	return r.txm.Execute(ctx, func(tx *Tx) error {
		idx, err := r.loadIndex(ctx, tx)
		if err != nil {
			return err
		}
		if _, exists := idx[id]; !exists {
			return nil
		}

		if err := tx.Remove(TemplateKey(id)); err != nil {
			return err
		}
		if err := tx.Remove(HistoryKey(id)); err != nil {
			return err
		}
		delete(idx, id)
		if err := tx.SetJSON(KeyMetadataIndex, idx); err != nil {
			return err
		}

		queue, err := r.loadQueue(ctx, tx)
		if err != nil {
			return err
		}
		if i := queue.find(id); i >= 0 {
			queue = append(queue[:i], queue[i+1:]...)
			return tx.SetJSON(KeySchedulingQueue, queue)
		}
		return nil
	})
}

// UpdateScheduling is the single sanctioned entry point for scheduling
// mutation. It recomputes the next execution, writes the template, keeps
// exactly one queue entry per scheduled template, and updates the index's
// scheduling fields, all within one transaction.
func (r *TemplateRepository) UpdateScheduling(ctx context.Context, id string, s *model.Scheduling) (*model.Template, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var updated *model.Template
	err := r.txm.Execute(ctx, func(tx *Tx) error {
		t, err := getValue[model.Template](ctx, tx, TemplateKey(id))
		if err != nil {
			return err
		}
		if t == nil {
			return fmt.Errorf("%w: %s", common.ErrNotFound, id)
		}

		if err := r.applyScheduling(ctx, tx, t, s.Clone()); err != nil {
			return err
		}
		t.UpdatedAt = r.bumpUpdatedAt(t.UpdatedAt)

		idx, err := r.loadIndex(ctx, tx)
		if err != nil {
			return err
		}
		idx[id] = t.Summary()

		if err := tx.SetJSON(TemplateKey(id), t); err != nil {
			return err
		}
		if err := tx.SetJSON(KeyMetadataIndex, idx); err != nil {
			return err
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("updated template scheduling", "id", id,
		"enabled", updated.Scheduling != nil && updated.Scheduling.Enabled)
	return updated, nil
}

// applyScheduling sets t.Scheduling to s with a freshly computed next
// execution and reconciles the queue: an enabled schedule with a future
// execution keeps exactly one pending entry, anything else has its entry
// removed. Buffers queue writes on tx; callers persist the template and
// index themselves.
func (r *TemplateRepository) applyScheduling(ctx context.Context, tx *Tx, t *model.Template, s *model.Scheduling) error {
	t.Scheduling = s

	var next *int64
	if s != nil {
		nextTime, err := schedule.NextExecution(s, r.now())
		if err != nil {
			return err
		}
		if nextTime != nil {
			ms := model.TimeToMillis(*nextTime)
			next = &ms
		}
		s.NextExecution = next
	}

	queue, err := r.loadQueue(ctx, tx)
	if err != nil {
		return err
	}
	i := queue.find(t.ID)

	if s != nil && s.Enabled && next != nil {
		entry := model.QueueEntry{
			TemplateID:   t.ID,
			ScheduledFor: *next,
			Status:       model.QueuePending,
			Attempts:     0,
		}
		if i >= 0 {
			queue[i] = entry
		} else {
			queue = append(queue, entry)
		}
		return tx.SetJSON(KeySchedulingQueue, queue)
	}

	if i >= 0 {
		queue = append(queue[:i], queue[i+1:]...)
		return tx.SetJSON(KeySchedulingQueue, queue)
	}
	return nil
}

// Count reports the number of stored templates, from the index.
func (r *TemplateRepository) Count(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	idx, err := readValue[metadataIndex](ctx, r, KeyMetadataIndex)
	if err != nil {
		return 0, err
	}
	if idx == nil {
		return 0, nil
	}
	return len(*idx), nil
}

// bumpUpdatedAt returns a timestamp strictly greater than prev, even when
// the clock has not advanced past it.
func (r *TemplateRepository) bumpUpdatedAt(prev int64) int64 {
	now := model.TimeToMillis(r.now())
	if now <= prev {
		return prev + 1
	}
	return now
}

func (r *TemplateRepository) loadIndex(ctx context.Context, tx *Tx) (metadataIndex, error) {
	idx, err := getValue[metadataIndex](ctx, tx, KeyMetadataIndex)
	if err != nil {
		return nil, err
	}
	if idx == nil {
		return make(metadataIndex), nil
	}
	return *idx, nil
}

func (r *TemplateRepository) loadQueue(ctx context.Context, tx *Tx) (schedulingQueue, error) {
	q, err := getValue[schedulingQueue](ctx, tx, KeySchedulingQueue)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return schedulingQueue{}, nil
	}
	return *q, nil
}

// readKey serves a read through the shared cache, falling back to the
// provider and populating the cache on a hit.
func (r *TemplateRepository) readKey(ctx context.Context, key string) (json.RawMessage, error) {
	if v, ok := r.cache.Get(key); ok {
		return v, nil
	}
	v, err := r.provider.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if v != nil {
		r.cache.Set(key, v)
	}
	return v, nil
}

// readValue decodes a cached read. Returns nil without error for absent
// keys.
func readValue[T any](ctx context.Context, r *TemplateRepository, key string) (*T, error) {
	raw, err := r.readKey(ctx, key)
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
