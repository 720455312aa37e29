package repository

import (
	"context"
	"time"

	"channel-presence/internal/domain"
)

// PresenceRepository 定义了成员记录的存储和检索操作。
type PresenceRepository interface {
	// Create 插入一条新的成员记录。
	// (room_id, channel_name) 唯一约束冲突时返回 ErrDuplicateEntry，
	// 由调用方决定是否把它当作幂等 no-op。
	Create(ctx context.Context, presence *domain.Presence) error

	// Find 根据 (房间, 连接频道名) 查找成员记录。
	// 记录不存在时返回 ErrPresenceNotFound。
	Find(ctx context.Context, roomID uint, channelName string) (*domain.Presence, error)

	// FindByChannelName 返回指定连接在所有房间中的成员记录 (预加载 Room)。
	// 主要供断连时的 LeaveAll 使用。
	FindByChannelName(ctx context.Context, channelName string) ([]domain.Presence, error)

	// Touch 把指定连接在所有房间中的 last_seen 刷新为当前时间。
	// 必须是一条批量 UPDATE (热路径，每条入站消息都会触发)；
	// 未知连接是 no-op，不算错误。
	Touch(ctx context.Context, channelName string) error

	// Delete 删除一条成员记录。
	Delete(ctx context.Context, presence *domain.Presence) error

	// DeleteStale 批量删除指定房间中 last_seen 早于 cutoff 的成员记录，
	// 返回删除的行数。
	DeleteStale(ctx context.Context, roomID uint, cutoff time.Time) (int64, error)

	// ListByRoom 返回指定房间的全部成员记录 (预加载 User)。
	ListByRoom(ctx context.Context, roomID uint) ([]domain.Presence, error)

	// CountAnonymous 统计指定房间中匿名成员 (user_id 为 NULL) 的数量。
	CountAnonymous(ctx context.Context, roomID uint) (int64, error)
}
