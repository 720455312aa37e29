package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"channel-presence/internal/tasks"
)

// Pruner 是清扫任务所需的最小服务接口 (由 PresenceService 实现)
type Pruner interface {
	PrunePresences(ctx context.Context, maxAge time.Duration) error
	PruneRooms(ctx context.Context) error
}

// PresencePruneHandler 处理过期成员记录的清扫任务
type PresencePruneHandler struct {
	pruner Pruner
}

// NewPresencePruneHandler 创建 Handler 实例
func NewPresencePruneHandler(pruner Pruner) *PresencePruneHandler {
	if pruner == nil {
		panic("Pruner cannot be nil for PresencePruneHandler")
	}
	return &PresencePruneHandler{pruner: pruner}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *PresencePruneHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := logrus.WithField("task_type", t.Type())
	logCtx.Info("Processing presence prune task...")

	var payload tasks.PresencePrunePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			logCtx.WithError(err).Error("Failed to unmarshal task payload")
			return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
		}
	}

	if err := h.pruner.PrunePresences(ctx, payload.MaxAge()); err != nil {
		logCtx.WithError(err).Error("Failed to prune stale presences")
		return fmt.Errorf("prune presences: %w", err)
	}

	logCtx.Info("Presence prune task processed successfully")
	return nil
}

// RoomPruneHandler 处理空房间的清扫任务
type RoomPruneHandler struct {
	pruner Pruner
}

// NewRoomPruneHandler 创建 Handler 实例
func NewRoomPruneHandler(pruner Pruner) *RoomPruneHandler {
	if pruner == nil {
		panic("Pruner cannot be nil for RoomPruneHandler")
	}
	return &RoomPruneHandler{pruner: pruner}
}

// ProcessTask 实现 asynq.Handler 接口。
// 逻辑上在成员清扫之后执行：只有最后一条成员记录消失后房间才可回收。
func (h *RoomPruneHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := logrus.WithField("task_type", t.Type())
	logCtx.Info("Processing room prune task...")

	if err := h.pruner.PruneRooms(ctx); err != nil {
		logCtx.WithError(err).Error("Failed to prune empty rooms")
		return fmt.Errorf("prune rooms: %w", err)
	}

	logCtx.Info("Room prune task processed successfully")
	return nil
}
