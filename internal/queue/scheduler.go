package queue

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/arvault/arvault/internal/config"
	"github.com/hibiken/asynq"
)

// Scheduler enqueues periodic tasks for the workers.
type Scheduler struct {
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

func NewScheduler(logger *slog.Logger) (*Scheduler, error) {
	s := asynq.NewScheduler(redisConnOpt(), &asynq.SchedulerOpts{
		Location: time.UTC,
		Logger:   newAsynqLogger(logger),
		PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
			if err != nil {
				logger.Error("scheduled enqueue failed", slog.String("err", err.Error()))
				return
			}
			logger.Debug("scheduled task enqueued", slog.String("id", info.ID), slog.String("type", info.Type))
		},
	})

	task, err := NewExpirePendingUploadsTask(0)
	if err != nil {
		return nil, err
	}
	entryID, err := s.Register(config.EXPIRE_PENDING_CRON_SPEC, task)
	if err != nil {
		return nil, fmt.Errorf("failed to register %s: %w", config.TASK_TYPE_EXPIRE_PENDING_UPLOADS, err)
	}
	logger.Info("registered periodic task",
		slog.String("entry_id", entryID),
		slog.String("task", config.TASK_TYPE_EXPIRE_PENDING_UPLOADS),
		slog.String("spec", config.EXPIRE_PENDING_CRON_SPEC))

	return &Scheduler{scheduler: s, logger: logger}, nil
}

func (s *Scheduler) Start() error {
	return s.scheduler.Start()
}

func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	s.scheduler.Shutdown()
}
