package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/todo-manager/internal/cache"
	"github.com/BuzzLyutic/todo-manager/internal/config"
	"github.com/BuzzLyutic/todo-manager/internal/events"
	"github.com/BuzzLyutic/todo-manager/internal/handler"
	logging "github.com/BuzzLyutic/todo-manager/internal/logger"
	"github.com/BuzzLyutic/todo-manager/internal/metrics"
	"github.com/BuzzLyutic/todo-manager/internal/repo"
	"github.com/BuzzLyutic/todo-manager/internal/service"
	"github.com/BuzzLyutic/todo-manager/internal/worker"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Подключаем логгер
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	bus := events.NewBus(logger)
	bus.Subscribe(metrics.RecordChange)

	// Хранилище: память по умолчанию, postgres по STORE_DRIVER
	var store repo.TaskRepository
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("Failed to connect to Database", zap.Error(err)) // дальнейшая работа теряет смысл
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			logger.Fatal("Failed to ping the Database", zap.Error(err))
		}
		pgRepo := repo.NewTaskRepo(pool, bus)
		if err := pgRepo.Migrate(ctx); err != nil {
			logger.Fatal("Failed to apply schema", zap.Error(err))
		}
		logger.Info("Successfully connected to the Database!")
		store = pgRepo
	default:
		store = repo.NewMemoryStore(bus)
		logger.Info("Using in-memory task store")
	}

	opts := []service.Option{service.WithLogger(logger)}
	var invalidate events.Handler
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		c := cache.New(client, "todo:", cfg.CacheTTL, logger)
		defer c.Close()

		if err := c.Ping(ctx); err != nil {
			// без кэша сервис работает, просто медленнее
			logger.Warn("Redis unavailable, query cache disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		} else {
			invalidate = c.Invalidate
			opts = append(opts, service.WithCache(c))
			logger.Info("Query cache enabled", zap.String("addr", cfg.RedisAddr), zap.Duration("ttl", cfg.CacheTTL))
		}
	}
	taskService := service.NewTaskService(store, opts...)

	// порядок важен: сначала сервис помечает кэшируемые чтения устаревшими, затем кэш чистится
	bus.Subscribe(taskService.HandleChange)
	if invalidate != nil {
		bus.Subscribe(invalidate)
	}

	watcher := worker.NewWatcher(taskService, metrics.TasksOverdue, logger, cfg.OverdueScanInterval)
	watcher.Start(ctx)

	taskHandler := handler.NewTaskHandler(taskService, logger)

	srv := http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.NewRouter(taskHandler, logger),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() { // Запуск сервера и обработка ошибок
		logger.Info("Server started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", zap.Error(err))
	}
	watcher.Stop()

	logger.Info("Server stopped successfully!")
}
