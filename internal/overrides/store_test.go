package overrides

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"

	"certline/internal/domain"
)

type memPersister struct {
	mu      sync.Mutex
	saved   map[string]domain.Override
	fail    bool
	deleted []string
}

func (p *memPersister) SaveOverride(_ context.Context, o domain.Override) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("disk full")
	}
	p.saved[o.TaskID] = o
	return nil
}

func (p *memPersister) DeleteOverrides(_ context.Context, ids []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range ids {
		delete(p.saved, id)
	}
	p.deleted = append(p.deleted, ids...)
	return nil
}

type StoreSuite struct {
	suite.Suite
	store     *Store
	persister *memPersister
	clock     time.Time
	ctx       context.Context
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.clock = time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)
	s.persister = &memPersister{saved: map[string]domain.Override{}}
	s.store = New(WithPersister(s.persister), WithClock(func() time.Time { return s.clock }))
	s.ctx = context.Background()
}

func (s *StoreSuite) tasks(ids ...string) []domain.Task {
	out := make([]domain.Task, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.Task{ID: id, Status: domain.TaskPending})
	}
	return out
}

func (s *StoreSuite) TestTransitions() {
	cases := []struct {
		from, to domain.TaskStatus
		ok       bool
	}{
		{domain.TaskPending, domain.TaskInProgress, true},
		{domain.TaskPending, domain.TaskCompleted, false},
		{domain.TaskPending, domain.TaskPending, false},
		{domain.TaskInProgress, domain.TaskCompleted, true},
		{domain.TaskInProgress, domain.TaskPending, true},
		{domain.TaskInProgress, domain.TaskInProgress, false},
		{domain.TaskCompleted, domain.TaskPending, true},
		{domain.TaskCompleted, domain.TaskInProgress, false},
		{domain.TaskCompleted, domain.TaskCompleted, false},
	}
	for _, tc := range cases {
		s.Equal(tc.ok, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func (s *StoreSuite) TestCompleteThenRevert() {
	live := NewLiveSet(s.tasks("task-1"))

	_, err := s.store.SetStatus(s.ctx, live, "task-1", domain.TaskInProgress)
	s.Require().NoError(err)
	s.clock = s.clock.Add(time.Hour)
	done, err := s.store.SetStatus(s.ctx, live, "task-1", domain.TaskCompleted)
	s.Require().NoError(err)
	s.Require().NotNil(done.CompletedAt)
	s.Equal("2024-06-01T10:30:00Z", *done.CompletedAt)

	merged := s.store.Apply(s.tasks("task-1"))
	s.Equal(domain.TaskCompleted, merged[0].Status)
	s.NotNil(merged[0].CompletedAt)

	reverted, err := s.store.SetStatus(s.ctx, live, "task-1", domain.TaskPending)
	s.Require().NoError(err)
	s.Nil(reverted.CompletedAt)

	merged = s.store.Apply(s.tasks("task-1"))
	s.Equal(domain.TaskPending, merged[0].Status)
	s.Nil(merged[0].CompletedAt)
	s.Nil(s.persister.saved["task-1"].CompletedAt)
}

func (s *StoreSuite) TestInvalidTransitionKeepsState() {
	live := NewLiveSet(s.tasks("task-1"))

	_, err := s.store.SetStatus(s.ctx, live, "task-1", domain.TaskCompleted)
	s.Require().ErrorIs(err, ErrInvalidTransition)
	_, ok := s.store.Get("task-1")
	s.False(ok)

	_, err = s.store.SetStatus(s.ctx, live, "task-1", domain.TaskInProgress)
	s.Require().NoError(err)
	_, err = s.store.SetStatus(s.ctx, live, "task-1", "archived")
	s.Require().ErrorIs(err, ErrInvalidTransition)
	s.Equal(domain.TaskInProgress, s.store.Current("task-1"))
}

func (s *StoreSuite) TestStaleReference() {
	live := NewLiveSet(s.tasks("task-1"))
	_, err := s.store.SetStatus(s.ctx, live, "task-gone", domain.TaskInProgress)
	s.Require().ErrorIs(err, ErrStaleReference)
	s.Empty(s.store.List())
}

func (s *StoreSuite) TestPersistFailureLeavesMemoryUntouched() {
	s.persister.fail = true
	_, err := s.store.SetStatus(s.ctx, nil, "task-1", domain.TaskInProgress)
	s.Require().Error(err)
	s.Equal(domain.TaskPending, s.store.Current("task-1"))
}

func (s *StoreSuite) TestBulkCompleteWithStaleEntry() {
	ids := []string{"task-1", "task-2", "task-3", "task-4", "task-5"}
	live := NewLiveSet(s.tasks(ids...))
	for _, id := range ids {
		_, err := s.store.SetStatus(s.ctx, live, id, domain.TaskInProgress)
		s.Require().NoError(err)
	}
	// task-3's certification was renewed in the meantime
	delete(live, "task-3")

	results := s.store.BulkSetStatus(s.ctx, live, ids, domain.TaskCompleted)
	s.Require().Len(results, 5)
	updated := 0
	for _, r := range results {
		if r.Err == nil {
			updated++
			s.Equal(domain.TaskCompleted, r.Override.Status)
			continue
		}
		s.Equal("task-3", r.TaskID)
		s.ErrorIs(r.Err, ErrStaleReference)
		s.Nil(r.Override)
	}
	s.Equal(4, updated)
	s.Equal(domain.TaskInProgress, s.store.Current("task-3"))
}

func (s *StoreSuite) TestApplyIgnoresStaleOverrides() {
	_, err := s.store.SetStatus(s.ctx, nil, "task-old", domain.TaskInProgress)
	s.Require().NoError(err)

	merged := s.store.Apply(s.tasks("task-new"))
	s.Require().Len(merged, 1)
	s.Equal(domain.TaskPending, merged[0].Status)
	s.Equal([]string{"task-old"}, s.store.Stale(NewLiveSet(merged)))
}

func (s *StoreSuite) TestCollect() {
	for _, id := range []string{"task-a", "task-b", "task-c"} {
		_, err := s.store.SetStatus(s.ctx, nil, id, domain.TaskInProgress)
		s.Require().NoError(err)
	}
	removed, err := s.store.Collect(s.ctx, NewLiveSet(s.tasks("task-b")))
	s.Require().NoError(err)
	s.Equal([]string{"task-a", "task-c"}, removed)
	s.Equal([]string{"task-a", "task-c"}, s.persister.deleted)
	s.Len(s.store.List(), 1)

	removed, err = s.store.Collect(s.ctx, NewLiveSet(s.tasks("task-b")))
	s.Require().NoError(err)
	s.Empty(removed)
}

func (s *StoreSuite) TestLoad() {
	completed := "2024-05-01T00:00:00Z"
	s.store.Load([]domain.Override{
		{TaskID: "task-1", Status: domain.TaskCompleted, CompletedAt: &completed},
	})
	s.Equal(domain.TaskCompleted, s.store.Current("task-1"))
	_, err := s.store.SetStatus(s.ctx, nil, "task-1", domain.TaskPending)
	s.Require().NoError(err)
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := New()
	ctx := context.Background()
	tasks := make([]domain.Task, 0, 50)
	for i := 0; i < 50; i++ {
		tasks = append(tasks, domain.Task{ID: fmt.Sprintf("task-%02d", i)})
	}
	live := NewLiveSet(tasks)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := store.SetStatus(ctx, live, id, domain.TaskInProgress); err != nil {
				t.Errorf("set %s: %v", id, err)
			}
		}(tasks[i].ID)
	}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = store.Apply(tasks)
			}
		}()
	}
	wg.Wait()

	for _, task := range store.Apply(tasks) {
		if task.Status != domain.TaskInProgress {
			t.Fatalf("task %s: status %s", task.ID, task.Status)
		}
	}
}
