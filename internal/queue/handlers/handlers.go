package handlers

import (
	"context"
	"log/slog"
	"time"
)

// UploadSweeper is the part of the lifecycle engine the worker drives.
type UploadSweeper interface {
	ExpireStaleUploads(ctx context.Context, olderThan time.Duration) (int, error)
}

// Handlers contains all queue task handlers
type Handlers struct {
	sweeper UploadSweeper
	logger  *slog.Logger
}

func NewHandlers(sweeper UploadSweeper, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		sweeper: sweeper,
		logger:  logger.With(slog.String("component", "queue")),
	}
}
