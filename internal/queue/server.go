package queue

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/arvault/arvault/internal/config"
	"github.com/arvault/arvault/internal/database"
	"github.com/arvault/arvault/internal/filestorage"
	"github.com/arvault/arvault/internal/lock"
	"github.com/arvault/arvault/internal/queue/handlers"
	"github.com/arvault/arvault/internal/usecase"
	"github.com/hibiken/asynq"
	_ "github.com/joho/godotenv/autoload"
)

// Worker represents a worker application with all its dependencies
type Worker struct {
	asynqServer *asynq.Server
	mux         *asynq.ServeMux
	closers     []func() error
	logger      *slog.Logger
}

// NewWorker creates a fully configured worker with all dependencies
func NewWorker(logger *slog.Logger) (*Worker, error) {
	logger.Info("initializing worker dependencies")
	ctx := context.Background()

	repo, err := database.New(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create repository: %w", err)
	}

	fsp, err := filestorage.NewFromEnv(ctx)
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("failed to create file storage: %w", err)
	}

	rdb, err := lock.NewRedisClientFromEnv(ctx)
	if err != nil {
		_ = repo.Close()
		return nil, err
	}

	// the sweeper never produces artifacts
	uc := usecase.New(repo, fsp, repo, lock.NewRedisLocker(rdb, logger), nil, nil, logger, usecase.DefaultOptions())

	workerConcurrency := 10
	if wc := os.Getenv(config.ENV_KEY_WORKER_CONCURRENCY); wc != "" {
		var n int
		if _, err := fmt.Sscanf(wc, "%d", &n); err == nil && n > 0 {
			workerConcurrency = n
		}
	}

	asynqServer := asynq.NewServer(
		redisConnOpt(),
		asynq.Config{
			Concurrency: workerConcurrency,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			Logger: newAsynqLogger(logger),
		},
	)

	return &Worker{
		asynqServer: asynqServer,
		mux:         NewServeMux(handlers.NewHandlers(uc, logger)),
		closers:     []func() error{repo.Close, rdb.Close},
		logger:      logger,
	}, nil
}

// NewServeMux registers task handlers - one line per task type.
func NewServeMux(h *handlers.Handlers) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(config.TASK_TYPE_EXPIRE_PENDING_UPLOADS, h.HandleExpirePendingUploads)
	return mux
}

// Start starts the worker server
func (w *Worker) Start() error {
	w.logger.Info("worker started", slog.String("task", config.TASK_TYPE_EXPIRE_PENDING_UPLOADS))
	return w.asynqServer.Start(w.mux)
}

// Stop stops the worker server gracefully
func (w *Worker) Stop() {
	w.logger.Info("stopping worker")
	w.asynqServer.Shutdown()

	for _, closeFn := range w.closers {
		if err := closeFn(); err != nil {
			w.logger.Error("error closing resource", slog.String("err", err.Error()))
		}
	}
}
