package repo

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BuzzLyutic/todo-manager/internal/events"
	"github.com/BuzzLyutic/todo-manager/internal/model"
)

//go:embed schema.sql
var schema string

// ErrDuplicateID is returned when an insert collides with an existing task id.
var ErrDuplicateID = errors.New("duplicate task id")

const taskColumns = `id, title, description, status, due_date, created_at, updated_at`

type TaskRepo struct { // Репозиторий для работы непосредственно с БД
	pool *pgxpool.Pool
	bus  *events.Bus
	now  func() time.Time
}

func NewTaskRepo(pool *pgxpool.Pool, bus *events.Bus) *TaskRepo { // Конструктор
	return &TaskRepo{
		pool: pool,
		bus:  bus,
		now:  time.Now,
	}
}

// Migrate создает таблицу задач, если ее еще нет
func (r *TaskRepo) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (r *TaskRepo) Add(ctx context.Context, in model.TaskInput) (model.Task, error) {
	now := r.now()
	t := model.Task{
		ID:          uuid.NewString(),
		Title:       in.Title,
		Description: in.Description,
		Status:      in.Status,
		DueDate:     in.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}.Clone()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO tasks (id, title, description, status, due_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING `+taskColumns,
		t.ID, t.Title, t.Description, t.Status, t.DueDate, now)

	created, err := scanTask(row)
	if err != nil {
		return model.Task{}, r.mapError(err)
	}

	r.bus.Publish(ctx, events.Change{Type: events.TaskCreated, TaskID: created.ID, Status: created.Status, At: now})
	return created, nil
}

func (r *TaskRepo) Edit(ctx context.Context, t model.Task) (bool, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE tasks
		SET title = $2, description = $3, status = $4, due_date = $5,
		    updated_at = GREATEST($6, created_at)
		WHERE id = $1
		RETURNING `+taskColumns,
		t.ID, t.Title, t.Description, t.Status, t.DueDate, r.now())

	updated, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("edit task %s: %w", t.ID, err)
	}

	r.bus.Publish(ctx, events.Change{Type: events.TaskUpdated, TaskID: updated.ID, Status: updated.Status, At: updated.UpdatedAt})
	return true, nil
}

func (r *TaskRepo) SetStatus(ctx context.Context, id string, status model.Status) (bool, error) {
	var at time.Time
	err := r.pool.QueryRow(ctx, `
		UPDATE tasks SET status = $2, updated_at = GREATEST($3, created_at)
		WHERE id = $1
		RETURNING updated_at
	`, id, status, r.now()).Scan(&at)

	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("set status of task %s: %w", id, err)
	}

	r.bus.Publish(ctx, events.Change{Type: events.TaskStatusChanged, TaskID: id, Status: status, At: at})
	return true, nil
}

func (r *TaskRepo) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, "DELETE FROM tasks WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	if cmd.RowsAffected() > 0 {
		r.bus.Publish(ctx, events.Change{Type: events.TaskDeleted, TaskID: id, At: r.now()})
	}
	return nil
}

func (r *TaskRepo) Get(ctx context.Context, id string) (model.Task, bool, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)

	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Task{}, false, nil
	}
	if err != nil {
		return model.Task{}, false, fmt.Errorf("get task %s: %w", id, err)
	}
	return t, true, nil
}

func (r *TaskRepo) List(ctx context.Context, filter model.TaskFilter) ([]model.Task, error) {
	status, _ := filter.StatusConstraint()

	// strpos вместо ILIKE, чтобы % и _ в запросе не были шаблоном
	return r.query(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE ($1::text = '' OR status = $1::text)
		  AND ($2::text = ''
		       OR strpos(lower(title), lower($2::text)) > 0
		       OR strpos(lower(description), lower($2::text)) > 0)
		ORDER BY seq
	`, string(status), filter.Query)
}

func (r *TaskRepo) Overdue(ctx context.Context, now time.Time) ([]model.Task, error) {
	candidates, err := r.query(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE due_date IS NOT NULL AND status <> 'completed'
		ORDER BY seq
	`)
	if err != nil {
		return nil, err
	}

	overdue := candidates[:0]
	for _, t := range candidates {
		if model.IsOverdue(t, now) {
			overdue = append(overdue, t)
		}
	}
	return overdue, nil
}

func (r *TaskRepo) Count(ctx context.Context) (map[model.Status]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.Status]int, len(model.Statuses))
	for _, st := range model.Statuses {
		counts[st] = 0
	}
	for rows.Next() {
		var (
			status model.Status
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r *TaskRepo) query(ctx context.Context, sql string, args ...any) ([]model.Task, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]model.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func scanTask(row pgx.Row) (model.Task, error) {
	var t model.Task
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Status, &t.DueDate, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return model.Task{}, err
	}
	// pgx отдает timestamptz в time.Local, а срок храним в UTC
	return t.UTC(), nil
}

func (r *TaskRepo) mapError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateID
	}
	return err
}
