package tasks

import (
	"encoding/json"
	"time"
)

// 定义任务类型常量
const (
	TypePresencePrune = "presence:prune" // 清扫过期成员记录
	TypeRoomPrune     = "room:prune"     // 清扫空房间
)

// PresencePrunePayload 定义了成员清扫任务的数据结构。
// MaxAgeSeconds <= 0 表示使用服务端配置的默认阈值。
type PresencePrunePayload struct {
	MaxAgeSeconds int64 `json:"max_age_seconds"`
}

// MaxAge 返回 payload 中的阈值，未指定时为 0
func (p PresencePrunePayload) MaxAge() time.Duration {
	if p.MaxAgeSeconds <= 0 {
		return 0
	}
	return time.Duration(p.MaxAgeSeconds) * time.Second
}

// NewPresencePruneTask 创建成员清扫任务的 payload。
// maxAge <= 0 时让服务端使用默认阈值。
func NewPresencePruneTask(maxAge time.Duration) ([]byte, error) {
	payload := PresencePrunePayload{
		MaxAgeSeconds: int64(maxAge / time.Second),
	}
	return json.Marshal(payload)
}

// NewRoomPruneTask 创建空房间清扫任务的 payload (无参数)
func NewRoomPruneTask() ([]byte, error) {
	return json.Marshal(struct{}{})
}
