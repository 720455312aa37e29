package gormpersistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"channel-presence/internal/domain"
	"channel-presence/internal/repository"
)

// GormPresenceRepository 是 PresenceRepository 接口的 GORM 实现
type GormPresenceRepository struct {
	db *gorm.DB
}

// NewGormPresenceRepository 创建 GormPresenceRepository 实例
func NewGormPresenceRepository(db *gorm.DB) *GormPresenceRepository {
	if db == nil {
		panic("database connection cannot be nil for GormPresenceRepository")
	}
	return &GormPresenceRepository{db: db}
}

// Create 实现插入成员记录，唯一约束冲突映射为 ErrDuplicateEntry
func (r *GormPresenceRepository) Create(ctx context.Context, presence *domain.Presence) error {
	if presence.LastSeen.IsZero() {
		presence.LastSeen = time.Now()
	}
	err := r.db.WithContext(ctx).Create(presence).Error
	if err != nil {
		if isDuplicateEntryError(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: create presence (room %d, channel %s): %w",
			presence.RoomID, presence.ChannelName, err)
	}
	return nil
}

// Find 实现根据 (房间, 连接频道名) 查找成员记录
func (r *GormPresenceRepository) Find(ctx context.Context, roomID uint, channelName string) (*domain.Presence, error) {
	var presence domain.Presence
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND channel_name = ?", roomID, channelName).
		First(&presence).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrPresenceNotFound
		}
		return nil, fmt.Errorf("gorm: find presence (room %d, channel %s): %w", roomID, channelName, err)
	}
	return &presence, nil
}

// FindByChannelName 实现查询连接在所有房间中的成员记录，预加载 Room
func (r *GormPresenceRepository) FindByChannelName(ctx context.Context, channelName string) ([]domain.Presence, error) {
	var presences []domain.Presence
	err := r.db.WithContext(ctx).
		Preload("Room").
		Where("channel_name = ?", channelName).
		Find(&presences).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: find presences by channel '%s': %w", channelName, err)
	}
	return presences, nil
}

// Touch 实现批量刷新 last_seen。
// 一条 UPDATE 覆盖连接所在的全部房间；影响 0 行不是错误。
func (r *GormPresenceRepository) Touch(ctx context.Context, channelName string) error {
	err := r.db.WithContext(ctx).
		Model(&domain.Presence{}).
		Where("channel_name = ?", channelName).
		Update("last_seen", time.Now()).Error
	if err != nil {
		return fmt.Errorf("gorm: touch presences for channel '%s': %w", channelName, err)
	}
	return nil
}

// Delete 实现删除一条成员记录
func (r *GormPresenceRepository) Delete(ctx context.Context, presence *domain.Presence) error {
	err := r.db.WithContext(ctx).Delete(&domain.Presence{}, presence.ID).Error
	if err != nil {
		return fmt.Errorf("gorm: delete presence %d: %w", presence.ID, err)
	}
	return nil
}

// DeleteStale 实现批量删除过期成员记录，返回删除行数
func (r *GormPresenceRepository) DeleteStale(ctx context.Context, roomID uint, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("room_id = ? AND last_seen < ?", roomID, cutoff).
		Delete(&domain.Presence{})
	if result.Error != nil {
		return 0, fmt.Errorf("gorm: delete stale presences for room %d: %w", roomID, result.Error)
	}
	return result.RowsAffected, nil
}

// ListByRoom 实现查询房间全部成员，预加载 User
func (r *GormPresenceRepository) ListByRoom(ctx context.Context, roomID uint) ([]domain.Presence, error) {
	var presences []domain.Presence
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("room_id = ?", roomID).
		Find(&presences).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list presences for room %d: %w", roomID, err)
	}
	return presences, nil
}

// CountAnonymous 实现统计房间内匿名成员数量
func (r *GormPresenceRepository) CountAnonymous(ctx context.Context, roomID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Presence{}).
		Where("room_id = ? AND user_id IS NULL", roomID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("gorm: count anonymous presences for room %d: %w", roomID, err)
	}
	return count, nil
}
