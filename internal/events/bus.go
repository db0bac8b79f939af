// Package events carries change notifications from the task store to its subscribers.
package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BuzzLyutic/todo-manager/internal/model"
)

type Type string

const (
	TaskCreated       Type = "task.created"
	TaskUpdated       Type = "task.updated"
	TaskStatusChanged Type = "task.status_changed"
	TaskDeleted       Type = "task.deleted"
)

// Change is published after a mutation has been applied to the store.
type Change struct {
	Type   Type
	TaskID string
	Status model.Status
	At     time.Time
}

type Handler func(ctx context.Context, c Change)

// Bus delivers changes to subscribers synchronously, in subscription order.
// A panicking handler is logged and does not stop delivery to the others.
type Bus struct {
	mu       sync.RWMutex
	handlers map[int]Handler
	order    []int
	next     int
	logger   *zap.Logger
}

func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		handlers: make(map[int]Handler),
		logger:   logger,
	}
}

// Subscribe registers h and returns a function that removes it.
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	b.handlers[id] = h
	b.order = append(b.order, id)

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.handlers, id)
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Publish is safe to call on a nil Bus.
func (b *Bus) Publish(ctx context.Context, c Change) {
	if b == nil {
		return
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.order))
	for _, id := range b.order {
		handlers = append(handlers, b.handlers[id])
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(ctx, h, c)
	}
}

func (b *Bus) deliver(ctx context.Context, h Handler, c Change) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panic",
				zap.String("event", string(c.Type)),
				zap.String("task_id", c.TaskID),
				zap.Any("panic", r),
			)
		}
	}()
	h(ctx, c)
}
