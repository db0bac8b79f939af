// internal/repo/task_test.go
package repo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/BuzzLyutic/todo-manager/internal/events"
	"github.com/BuzzLyutic/todo-manager/internal/model"
)

// setupTestDB подключается к TEST_DATABASE_URL или поднимает postgres в testcontainers
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		if testing.Short() {
			t.Skip("postgres tests skipped in short mode")
		}

		pgContainer, err := postgres.Run(ctx,
			"postgres:15-alpine",
			postgres.WithDatabase("testdb"),
			postgres.WithUsername("testuser"),
			postgres.WithPassword("testpass"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second),
			),
		)
		if err != nil {
			t.Skipf("postgres container unavailable: %v", err)
		}
		t.Cleanup(func() {
			if err := pgContainer.Terminate(ctx); err != nil {
				t.Errorf("Failed to terminate container: %v", err)
			}
		})

		dbURL, err = pgContainer.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	}

	pool, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, pool.Ping(ctx))

	require.NoError(t, NewTaskRepo(pool, nil).Migrate(ctx))
	_, err = pool.Exec(ctx, "TRUNCATE tasks RESTART IDENTITY")
	require.NoError(t, err)

	return pool
}

func TestTaskRepo(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	bus := events.NewBus(nil)
	var changes []events.Change
	bus.Subscribe(func(_ context.Context, c events.Change) { changes = append(changes, c) })

	repo := NewTaskRepo(pool, bus)

	t.Run("add and get", func(t *testing.T) {
		created, err := repo.Add(ctx, model.TaskInput{
			Title:   "Buy milk",
			Status:  model.StatusTodo,
			DueDate: dueOn(2000, time.January, 1),
		})
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)

		got, ok, err := repo.Get(ctx, created.ID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, "Buy milk", got.Title)
		assert.True(t, got.DueDate.Equal(*created.DueDate))
		assert.Equal(t, events.TaskCreated, changes[len(changes)-1].Type)
	})

	t.Run("get missing", func(t *testing.T) {
		_, ok, err := repo.Get(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("list filters in insertion order", func(t *testing.T) {
		_, err := pool.Exec(ctx, "TRUNCATE tasks RESTART IDENTITY")
		require.NoError(t, err)

		for _, in := range []model.TaskInput{
			{Title: "Alpha", Status: model.StatusTodo},
			{Title: "Beta", Description: "100% FOO_bar", Status: model.StatusInProgress},
			{Title: "Gamma foo", Status: model.StatusTodo},
		} {
			_, err := repo.Add(ctx, in)
			require.NoError(t, err)
		}

		got, err := repo.List(ctx, model.TaskFilter{Status: "todo"})
		require.NoError(t, err)
		assert.Equal(t, []string{"Alpha", "Gamma foo"}, titles(got))

		got, err = repo.List(ctx, model.TaskFilter{Query: "foo"})
		require.NoError(t, err)
		assert.Equal(t, []string{"Beta", "Gamma foo"}, titles(got))

		got, err = repo.List(ctx, model.TaskFilter{Query: "0% f"})
		require.NoError(t, err)
		assert.Equal(t, []string{"Beta"}, titles(got), "% is matched literally")

		got, err = repo.List(ctx, model.TaskFilter{Status: model.FilterAll, Query: "ALP"})
		require.NoError(t, err)
		assert.Equal(t, []string{"Alpha"}, titles(got))
	})

	t.Run("edit, status and delete", func(t *testing.T) {
		created, err := repo.Add(ctx, model.TaskInput{Title: "Edit me", Status: model.StatusTodo})
		require.NoError(t, err)

		created.Title = "Edited"
		ok, err := repo.Edit(ctx, created)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.SetStatus(ctx, created.ID, model.StatusCompleted)
		require.NoError(t, err)
		assert.True(t, ok)

		got, _, err := repo.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "Edited", got.Title)
		assert.Equal(t, model.StatusCompleted, got.Status)
		assert.False(t, got.UpdatedAt.Before(got.CreatedAt))

		ok, err = repo.Edit(ctx, model.Task{ID: "missing", Title: "x", Status: model.StatusTodo})
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = repo.SetStatus(ctx, "missing", model.StatusTodo)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, repo.Delete(ctx, created.ID))
		require.NoError(t, repo.Delete(ctx, created.ID))
		_, ok, err = repo.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("overdue and count", func(t *testing.T) {
		_, err := pool.Exec(ctx, "TRUNCATE tasks RESTART IDENTITY")
		require.NoError(t, err)

		late, _ := repo.Add(ctx, model.TaskInput{Title: "late", Status: model.StatusTodo, DueDate: dueOn(2000, time.January, 1)})
		repo.Add(ctx, model.TaskInput{Title: "done", Status: model.StatusCompleted, DueDate: dueOn(2000, time.January, 1)})
		repo.Add(ctx, model.TaskInput{Title: "future", Status: model.StatusTodo, DueDate: dueOn(2100, time.January, 1)})

		now := time.Now().UTC()
		today, err := repo.Add(ctx, model.TaskInput{Title: "today", Status: model.StatusTodo, DueDate: dueOn(now.Year(), now.Month(), now.Day())})
		require.NoError(t, err)

		got, err := repo.Overdue(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, []string{late.ID}, ids(got), "due today is not overdue")

		stored, _, err := repo.Get(ctx, today.ID)
		require.NoError(t, err)
		assert.Equal(t, time.UTC, stored.DueDate.Location())
		assert.True(t, model.IsDateOnly(*stored.DueDate))

		counts, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, counts[model.StatusTodo])
		assert.Equal(t, 0, counts[model.StatusInProgress])
		assert.Equal(t, 1, counts[model.StatusCompleted])
	})
}
