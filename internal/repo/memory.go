package repo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BuzzLyutic/todo-manager/internal/events"
	"github.com/BuzzLyutic/todo-manager/internal/model"
)

// MemoryStore keeps tasks in insertion order. It owns the collection: every read
// returns copies and every write goes through its methods.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks []model.Task
	index map[string]int
	bus   *events.Bus
	now   func() time.Time
	newID func() string
}

func NewMemoryStore(bus *events.Bus) *MemoryStore {
	return &MemoryStore{
		index: make(map[string]int),
		bus:   bus,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

func (s *MemoryStore) Add(ctx context.Context, in model.TaskInput) (model.Task, error) {
	now := s.now()
	t := model.Task{
		Title:       in.Title,
		Description: in.Description,
		Status:      in.Status,
		DueDate:     in.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	t = t.UTC()

	s.mu.Lock()
	t.ID = s.freshID()
	s.index[t.ID] = len(s.tasks)
	s.tasks = append(s.tasks, t)
	s.mu.Unlock()

	s.bus.Publish(ctx, events.Change{Type: events.TaskCreated, TaskID: t.ID, Status: t.Status, At: now})
	return t.Clone(), nil
}

// freshID must be called with mu held.
func (s *MemoryStore) freshID() string {
	for {
		id := s.newID()
		if _, taken := s.index[id]; !taken {
			return id
		}
	}
}

func (s *MemoryStore) Edit(ctx context.Context, t model.Task) (bool, error) {
	s.mu.Lock()
	i, ok := s.index[t.ID]
	if !ok {
		s.mu.Unlock()
		return false, nil
	}
	stored := s.tasks[i]
	t = t.UTC()
	t.CreatedAt = stored.CreatedAt
	t.UpdatedAt = s.touch(stored)
	s.tasks[i] = t
	s.mu.Unlock()

	s.bus.Publish(ctx, events.Change{Type: events.TaskUpdated, TaskID: t.ID, Status: t.Status, At: t.UpdatedAt})
	return true, nil
}

func (s *MemoryStore) SetStatus(ctx context.Context, id string, status model.Status) (bool, error) {
	s.mu.Lock()
	i, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return false, nil
	}
	s.tasks[i].Status = status
	s.tasks[i].UpdatedAt = s.touch(s.tasks[i])
	at := s.tasks[i].UpdatedAt
	s.mu.Unlock()

	s.bus.Publish(ctx, events.Change{Type: events.TaskStatusChanged, TaskID: id, Status: status, At: at})
	return true, nil
}

// touch returns the new UpdatedAt for stored, never earlier than its CreatedAt.
func (s *MemoryStore) touch(stored model.Task) time.Time {
	now := s.now()
	if now.Before(stored.CreatedAt) {
		return stored.CreatedAt
	}
	return now
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	i, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
	delete(s.index, id)
	for j := i; j < len(s.tasks); j++ {
		s.index[s.tasks[j].ID] = j
	}
	s.mu.Unlock()

	s.bus.Publish(ctx, events.Change{Type: events.TaskDeleted, TaskID: id, At: s.now()})
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (model.Task, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return model.Task{}, false, nil
	}
	return s.tasks[i].Clone(), true, nil
}

func (s *MemoryStore) List(_ context.Context, filter model.TaskFilter) ([]model.Task, error) {
	return s.collect(filter.Matches), nil
}

func (s *MemoryStore) Overdue(_ context.Context, now time.Time) ([]model.Task, error) {
	return s.collect(func(t model.Task) bool {
		return model.IsOverdue(t, now)
	}), nil
}

func (s *MemoryStore) Count(_ context.Context) (map[model.Status]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[model.Status]int, len(model.Statuses))
	for _, st := range model.Statuses {
		counts[st] = 0
	}
	for _, t := range s.tasks {
		counts[t.Status]++
	}
	return counts, nil
}

func (s *MemoryStore) collect(keep func(model.Task) bool) []model.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if keep(t) {
			out = append(out, t.Clone())
		}
	}
	return out
}
