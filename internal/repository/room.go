package repository

import (
	"context"

	"channel-presence/internal/domain"
)

// RoomRepository 定义了房间数据的存储和检索操作。
type RoomRepository interface {
	// GetOrCreate 按组频道名原子地查找或创建房间。
	// 与并发创建者的竞争在实现内部解决 (唯一约束冲突后重新查询)，
	// 绝不会把冲突暴露给调用者。
	GetOrCreate(ctx context.Context, channelName string) (*domain.Room, error)

	// FindByChannelName 根据组频道名查找房间。
	// 房间不存在时返回 ErrRoomNotFound。
	FindByChannelName(ctx context.Context, channelName string) (*domain.Room, error)

	// FindAll 返回所有房间，供清扫任务遍历。
	FindAll(ctx context.Context) ([]domain.Room, error)

	// DeleteEmpty 删除所有没有任何成员记录的房间，返回删除的行数。
	DeleteEmpty(ctx context.Context) (int64, error)

	// ListUsers 返回当前位于指定房间中的全部已认证用户 (去重)。
	ListUsers(ctx context.Context, roomID uint) ([]domain.User, error)
}
