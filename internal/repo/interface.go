package repo

import (
	"context"
	"errors"
	"time"

	"github.com/BuzzLyutic/todo-manager/internal/model"
)

// ErrNotFound is returned by callers that require the task to exist.
// Repositories themselves report absence through their bool results.
var ErrNotFound = errors.New("task not found")

// TaskRepository определяет интерфейс для работы с задачами
type TaskRepository interface {
	Add(ctx context.Context, in model.TaskInput) (model.Task, error)
	Edit(ctx context.Context, t model.Task) (bool, error)
	Delete(ctx context.Context, id string) error
	SetStatus(ctx context.Context, id string, status model.Status) (bool, error)
	Get(ctx context.Context, id string) (model.Task, bool, error)
	List(ctx context.Context, filter model.TaskFilter) ([]model.Task, error)
	Overdue(ctx context.Context, now time.Time) ([]model.Task, error)
	Count(ctx context.Context) (map[model.Status]int, error)
}
