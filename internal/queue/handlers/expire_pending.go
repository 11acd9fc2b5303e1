package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/arvault/arvault/internal/config"
	"github.com/hibiken/asynq"
)

type ExpirePendingUploadsPayload struct {
	OlderThanSeconds int64 `json:"older_than_seconds,omitempty"`
}

func (p ExpirePendingUploadsPayload) OlderThan() time.Duration {
	if p.OlderThanSeconds <= 0 {
		return config.PENDING_UPLOAD_EXPIRE_AFTER
	}
	return time.Duration(p.OlderThanSeconds) * time.Second
}

// HandleExpirePendingUploads fails assets whose upload was never completed.
// This is a thin wrapper that delegates to the usecase method.
func (h *Handlers) HandleExpirePendingUploads(ctx context.Context, task *asynq.Task) error {
	var payload ExpirePendingUploadsPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			h.logger.ErrorContext(ctx, "invalid task payload",
				slog.String("task", task.Type()), slog.String("err", err.Error()))
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}
	}

	olderThan := payload.OlderThan()
	n, err := h.sweeper.ExpireStaleUploads(ctx, olderThan)
	if err != nil {
		h.logger.ErrorContext(ctx, "expire pending uploads failed",
			slog.Int("expired", n), slog.String("err", err.Error()))
		return err
	}

	h.logger.InfoContext(ctx, "expired pending uploads",
		slog.Int("expired", n), slog.Duration("older_than", olderThan))
	return nil
}
