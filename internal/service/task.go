package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BuzzLyutic/todo-manager/internal/cache"
	"github.com/BuzzLyutic/todo-manager/internal/events"
	"github.com/BuzzLyutic/todo-manager/internal/model"
	"github.com/BuzzLyutic/todo-manager/internal/repo"
)

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = repo.ErrNotFound
)

// QueryCache is the read-through cache consulted by GetTasks and GetTask.
type QueryCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any) error
}

type TaskService struct {
	repo   repo.TaskRepository
	cache  QueryCache
	logger *zap.Logger
	now    func() time.Time
	group  singleflight.Group

	// gen растет при каждом изменении хранилища; запись в кэш пропускается,
	// если между чтением из хранилища и записью gen сменился
	genMu sync.RWMutex
	gen   uint64
}

type Option func(*TaskService)

func WithCache(c QueryCache) Option {
	return func(s *TaskService) { s.cache = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *TaskService) { s.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *TaskService) { s.now = now }
}

func NewTaskService(repo repo.TaskRepository, opts ...Option) *TaskService {
	s := &TaskService{
		repo:   repo,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateTask сохраняет новую задачу; пустой статус означает todo
func (s *TaskService) CreateTask(ctx context.Context, in model.TaskInput) (model.Task, error) {
	if in.Status == "" {
		in.Status = model.StatusTodo
	}
	if !in.Status.Valid() {
		return model.Task{}, fmt.Errorf("%w: status %q", ErrValidation, in.Status)
	}
	return s.repo.Add(ctx, in)
}

// UpdateTask merges patch over the stored task. Fields left nil are preserved.
func (s *TaskService) UpdateTask(ctx context.Context, id string, patch model.TaskPatch) (model.Task, error) {
	if patch.Status != nil && !patch.Status.Valid() {
		return model.Task{}, fmt.Errorf("%w: status %q", ErrValidation, *patch.Status)
	}

	existing, err := s.mustGet(ctx, id)
	if err != nil {
		return model.Task{}, err
	}

	merged := patch.Apply(existing)
	ok, err := s.repo.Edit(ctx, merged)
	if err != nil {
		return model.Task{}, err
	}
	if !ok {
		// удалена между чтением и записью
		return model.Task{}, ErrNotFound
	}

	// перечитываем, чтобы вернуть обновленный updated_at
	return s.mustGet(ctx, id)
}

// DeleteTask succeeds whether or not the task existed.
func (s *TaskService) DeleteTask(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// HandleChange marks cached reads started before the change as stale. It is an events.Handler
// and must be subscribed before the cache's own invalidation.
func (s *TaskService) HandleChange(_ context.Context, _ events.Change) {
	s.genMu.Lock()
	s.gen++
	s.genMu.Unlock()
}

func (s *TaskService) generation() uint64 {
	s.genMu.RLock()
	defer s.genMu.RUnlock()
	return s.gen
}

func (s *TaskService) GetTask(ctx context.Context, id string) (model.Task, error) {
	key := cache.TaskKey(id)
	if s.cache != nil {
		var cached model.Task
		if found, err := s.cache.Get(ctx, key, &cached); err != nil {
			s.logger.Warn("task cache read failed", zap.String("task_id", id), zap.Error(err))
		} else if found {
			return cached, nil
		}
	}

	gen := s.generation()
	t, err := s.mustGet(ctx, id)
	if err != nil {
		return model.Task{}, err
	}
	s.store(ctx, key, t, gen)
	return t, nil
}

func (s *TaskService) GetTasks(ctx context.Context, filter model.TaskFilter) ([]model.Task, error) {
	if s.cache == nil {
		return s.repo.List(ctx, filter)
	}

	key := cache.ListKey(filter)
	var cached []model.Task
	if found, err := s.cache.Get(ctx, key, &cached); err != nil {
		s.logger.Warn("task list cache read failed", zap.String("key", key), zap.Error(err))
	} else if found {
		return cached, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		gen := s.generation()
		tasks, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		s.store(ctx, key, tasks, gen)
		return tasks, nil
	})
	if err != nil {
		return nil, err
	}

	// singleflight shares one slice between callers
	shared := v.([]model.Task)
	tasks := make([]model.Task, len(shared))
	for i, t := range shared {
		tasks[i] = t.Clone()
	}
	return tasks, nil
}

// UpdateTaskStatus sets the status and returns the refreshed task.
// Unknown ids fail with ErrNotFound, as in UpdateTask.
func (s *TaskService) UpdateTaskStatus(ctx context.Context, id string, status model.Status) (model.Task, error) {
	if !status.Valid() {
		return model.Task{}, fmt.Errorf("%w: status %q", ErrValidation, status)
	}

	ok, err := s.repo.SetStatus(ctx, id, status)
	if err != nil {
		return model.Task{}, err
	}
	if !ok {
		return model.Task{}, ErrNotFound
	}
	return s.mustGet(ctx, id)
}

// IsTaskOverdue evaluates the overdue predicate against the current time.
func (s *TaskService) IsTaskOverdue(t model.Task) bool {
	return model.IsOverdue(t, s.now())
}

func (s *TaskService) GetOverdueTasks(ctx context.Context) ([]model.Task, error) {
	return s.repo.Overdue(ctx, s.now())
}

type Stats struct {
	ByStatus   map[model.Status]int `json:"by_status"`
	TotalTasks int                  `json:"total_tasks"`
	Overdue    int                  `json:"overdue"`
	Cache      *cache.Stats         `json:"cache,omitempty"`
}

// statsReporter is implemented by caches that count hits and misses.
type statsReporter interface {
	Stats() cache.Stats
}

func (s *TaskService) GetStats(ctx context.Context) (Stats, error) {
	counts, err := s.repo.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	overdue, err := s.repo.Overdue(ctx, s.now())
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{ByStatus: counts, Overdue: len(overdue)}
	for _, n := range counts {
		stats.TotalTasks += n
	}
	if sr, ok := s.cache.(statsReporter); ok {
		cs := sr.Stats()
		stats.Cache = &cs
	}
	return stats, nil
}

func (s *TaskService) mustGet(ctx context.Context, id string) (model.Task, error) {
	t, ok, err := s.repo.Get(ctx, id)
	if err != nil {
		return model.Task{}, err
	}
	if !ok {
		return model.Task{}, ErrNotFound
	}
	return t, nil
}

// store writes value to the cache unless the store changed after gen was taken.
// The check and the write happen under genMu so HandleChange cannot slip between them.
func (s *TaskService) store(ctx context.Context, key string, value any, gen uint64) {
	if s.cache == nil {
		return
	}
	s.genMu.RLock()
	defer s.genMu.RUnlock()
	if s.gen != gen {
		s.logger.Debug("skipping stale cache write", zap.String("key", key))
		return
	}
	if err := s.cache.Set(ctx, key, value); err != nil {
		s.logger.Warn("task cache write failed", zap.String("key", key), zap.Error(err))
	}
}
