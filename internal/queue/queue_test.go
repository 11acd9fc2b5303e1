package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/arvault/arvault/internal/config"
	"github.com/arvault/arvault/internal/queue/handlers"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSweeper struct {
	olderThan time.Duration
}

func (c *countingSweeper) ExpireStaleUploads(_ context.Context, olderThan time.Duration) (int, error) {
	c.olderThan = olderThan
	return 0, nil
}

func TestNewExpirePendingUploadsTask(t *testing.T) {
	task, err := NewExpirePendingUploadsTask(45 * time.Minute)
	require.NoError(t, err)
	assert.Equal(t, config.TASK_TYPE_EXPIRE_PENDING_UPLOADS, task.Type())

	var p handlers.ExpirePendingUploadsPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &p))
	assert.Equal(t, 45*time.Minute, p.OlderThan())

	task, err = NewExpirePendingUploadsTask(0)
	require.NoError(t, err)
	p = handlers.ExpirePendingUploadsPayload{}
	require.NoError(t, json.Unmarshal(task.Payload(), &p))
	assert.Equal(t, config.PENDING_UPLOAD_EXPIRE_AFTER, p.OlderThan())
}

func TestServeMuxRoutesSweepTask(t *testing.T) {
	sw := &countingSweeper{}
	mux := NewServeMux(handlers.NewHandlers(sw, nil))

	task, err := NewExpirePendingUploadsTask(2 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, mux.ProcessTask(context.Background(), task))
	assert.Equal(t, 2*time.Hour, sw.olderThan)

	err = mux.ProcessTask(context.Background(), asynq.NewTask("unknown:task", nil))
	assert.Error(t, err)
}
