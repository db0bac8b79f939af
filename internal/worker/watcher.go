package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BuzzLyutic/todo-manager/internal/model"
)

// OverdueSource lists the tasks that are overdue right now.
type OverdueSource interface {
	GetOverdueTasks(ctx context.Context) ([]model.Task, error)
}

// Gauge is the subset of prometheus.Gauge the watcher writes to.
type Gauge interface {
	Set(float64)
}

// Watcher periodically scans for overdue tasks, exports their count and logs
// each task once when it becomes overdue.
type Watcher struct {
	source   OverdueSource
	gauge    Gauge
	logger   *zap.Logger
	interval time.Duration

	mu   sync.Mutex
	seen map[string]struct{}

	wg       sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
}

func NewWatcher(source OverdueSource, gauge Gauge, logger *zap.Logger, interval time.Duration) *Watcher {
	return &Watcher{
		source:   source,
		gauge:    gauge,
		logger:   logger,
		interval: interval,
		seen:     make(map[string]struct{}),
		stop:     make(chan struct{}),
	}
}

func (w *Watcher) Start(ctx context.Context) {
	w.logger.Info("Starting overdue watcher", zap.Duration("interval", w.interval))

	w.wg.Add(1)
	go w.run(ctx)
}

func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("Stopping overdue watcher...")
		close(w.stop)
	})
	w.wg.Wait()
}

func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()

	// первый проход сразу, не дожидаясь тикера
	w.scan(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.scan(ctx)
		}
	}
}

// scan returns the number of overdue tasks found, or -1 on error.
func (w *Watcher) scan(ctx context.Context) int {
	tasks, err := w.source.GetOverdueTasks(ctx)
	if err != nil {
		w.logger.Error("overdue scan failed", zap.Error(err))
		return -1
	}

	w.gauge.Set(float64(len(tasks)))

	current := make(map[string]struct{}, len(tasks))

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, t := range tasks {
		current[t.ID] = struct{}{}
		if _, ok := w.seen[t.ID]; ok {
			continue
		}
		w.logger.Info("Task is overdue",
			zap.String("task_id", t.ID),
			zap.String("title", t.Title),
			zap.Timep("due_date", t.DueDate),
		)
	}
	// задачи, переставшие быть просроченными, снова залогируются при повторной просрочке
	w.seen = current

	return len(tasks)
}
