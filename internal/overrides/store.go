// Package overrides holds manually set task statuses on top of the derived
// task list. Derived tasks are never mutated; the store only remembers the
// status a person gave a task id.
package overrides

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"certline/internal/domain"
)

var (
	// ErrInvalidTransition is returned for a status change the state machine rejects.
	ErrInvalidTransition = errors.New("invalid_transition")
	// ErrStaleReference is returned when a task id no longer resolves to a live task.
	ErrStaleReference = errors.New("stale_reference")
)

// Persister stores overrides outside the process.
type Persister interface {
	SaveOverride(ctx context.Context, o domain.Override) error
	DeleteOverrides(ctx context.Context, taskIDs []string) error
}

// LiveSet is the set of task ids produced by the latest derivation.
type LiveSet map[string]struct{}

// NewLiveSet builds a LiveSet from derived tasks.
func NewLiveSet(tasks []domain.Task) LiveSet {
	live := make(LiveSet, len(tasks))
	for _, t := range tasks {
		live[t.ID] = struct{}{}
	}
	return live
}

func (l LiveSet) Has(id string) bool {
	_, ok := l[id]
	return ok
}

// Store is safe for concurrent use. Writes are last-write-wins per task id.
type Store struct {
	mu        sync.RWMutex
	entries   map[string]domain.Override
	persister Persister
	now       func() time.Time
}

type Option func(*Store)

func WithPersister(p Persister) Option {
	return func(s *Store) { s.persister = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{entries: map[string]domain.Override{}, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the in-memory state with previously persisted overrides.
func (s *Store) Load(items []domain.Override) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]domain.Override, len(items))
	for _, o := range items {
		s.entries[o.TaskID] = o
	}
}

// CanTransition reports whether the lifecycle allows from -> to.
func CanTransition(from, to domain.TaskStatus) bool {
	switch from {
	case domain.TaskPending:
		return to == domain.TaskInProgress
	case domain.TaskInProgress:
		return to == domain.TaskCompleted || to == domain.TaskPending
	case domain.TaskCompleted:
		return to == domain.TaskPending
	}
	return false
}

// Get returns the override for a task id, if any.
func (s *Store) Get(taskID string) (domain.Override, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.entries[taskID]
	return o, ok
}

// Current is the effective status of a task id; pending when no override exists.
func (s *Store) Current(taskID string) domain.TaskStatus {
	if o, ok := s.Get(taskID); ok {
		return o.Status
	}
	return domain.TaskPending
}

// SetStatus moves a task to status to. When live is non-nil the task id must
// be in it. Rejected changes leave the prior state untouched.
func (s *Store) SetStatus(ctx context.Context, live LiveSet, taskID string, to domain.TaskStatus) (domain.Override, error) {
	if live != nil && !live.Has(taskID) {
		return domain.Override{}, fmt.Errorf("%w: task %s", ErrStaleReference, taskID)
	}
	if !to.Valid() {
		return domain.Override{}, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	from := domain.TaskPending
	if prev, ok := s.entries[taskID]; ok {
		from = prev.Status
	}
	if !CanTransition(from, to) {
		return domain.Override{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	now := s.now().UTC().Format(time.RFC3339)
	o := domain.Override{TaskID: taskID, Status: to, UpdatedAt: now}
	if to == domain.TaskCompleted {
		o.CompletedAt = &now
	}
	if s.persister != nil {
		if err := s.persister.SaveOverride(ctx, o); err != nil {
			return domain.Override{}, fmt.Errorf("persist override %s: %w", taskID, err)
		}
	}
	s.entries[taskID] = o
	return o, nil
}

// Result is the outcome of one entry of a bulk change.
type Result struct {
	TaskID   string           `json:"task_id"`
	Override *domain.Override `json:"override,omitempty"`
	Err      error            `json:"-"`
}

// BulkSetStatus applies the same change to every id independently. A failing
// entry never rolls back the others.
func (s *Store) BulkSetStatus(ctx context.Context, live LiveSet, taskIDs []string, to domain.TaskStatus) []Result {
	results := make([]Result, 0, len(taskIDs))
	for _, id := range taskIDs {
		o, err := s.SetStatus(ctx, live, id, to)
		r := Result{TaskID: id, Err: err}
		if err == nil {
			r.Override = &o
		}
		results = append(results, r)
	}
	return results
}

// Apply overlays stored statuses on freshly derived tasks. Overrides whose
// task is absent are ignored.
func (s *Store) Apply(tasks []domain.Task) []domain.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Task, len(tasks))
	for i, t := range tasks {
		if o, ok := s.entries[t.ID]; ok {
			t.Status = o.Status
			t.CompletedAt = o.CompletedAt
		} else {
			t.Status = domain.TaskPending
			t.CompletedAt = nil
		}
		out[i] = t
	}
	return out
}

// Stale lists override ids that are not in live, sorted.
func (s *Store) Stale(live LiveSet) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id := range s.entries {
		if !live.Has(id) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Collect drops overrides whose task is no longer live and returns their ids.
func (s *Store) Collect(ctx context.Context, live LiveSet) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id := range s.entries {
		if !live.Has(id) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	sort.Strings(ids)
	if s.persister != nil {
		if err := s.persister.DeleteOverrides(ctx, ids); err != nil {
			return nil, fmt.Errorf("delete stale overrides: %w", err)
		}
	}
	for _, id := range ids {
		delete(s.entries, id)
	}
	return ids, nil
}

// List returns every override sorted by task id.
func (s *Store) List() []domain.Override {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Override, 0, len(s.entries))
	for _, o := range s.entries {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out
}
