package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"channel-presence/internal/domain"
	"channel-presence/internal/repository"
)

// GormRoomRepository 是 RoomRepository 接口的 GORM 实现
type GormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository 创建 GormRoomRepository 实例
func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	if db == nil {
		panic("database connection cannot be nil for GormRoomRepository")
	}
	return &GormRoomRepository{db: db}
}

// isDuplicateEntryError 检查是否是 MySQL 唯一约束冲突 (errno 1062)
func isDuplicateEntryError(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

// GetOrCreate 实现按组频道名原子地查找或创建房间。
// FirstOrCreate 本身是先查后插，两个并发创建者可能同时走到插入；
// 输掉竞争的一方会收到 1062 唯一约束冲突，此时重新查询已存在的行，
// 把竞争解决在仓库内部而不是抛给调用者。
func (r *GormRoomRepository) GetOrCreate(ctx context.Context, channelName string) (*domain.Room, error) {
	var room domain.Room
	err := r.db.WithContext(ctx).
		Where(domain.Room{ChannelName: channelName}).
		FirstOrCreate(&room).Error
	if err != nil {
		if isDuplicateEntryError(err) {
			// 并发创建者赢了竞争，重新取回它插入的行
			err = r.db.WithContext(ctx).
				Where("channel_name = ?", channelName).
				First(&room).Error
			if err != nil {
				return nil, fmt.Errorf("gorm: refetch room '%s' after duplicate: %w", channelName, err)
			}
			return &room, nil
		}
		return nil, fmt.Errorf("gorm: get or create room '%s': %w", channelName, err)
	}
	return &room, nil
}

// FindByChannelName 实现根据组频道名查找房间
func (r *GormRoomRepository) FindByChannelName(ctx context.Context, channelName string) (*domain.Room, error) {
	var room domain.Room
	err := r.db.WithContext(ctx).Where("channel_name = ?", channelName).First(&room).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find room by channel name '%s': %w", channelName, err)
	}
	return &room, nil
}

// FindAll 实现获取全部房间 (清扫任务遍历用)
func (r *GormRoomRepository) FindAll(ctx context.Context) ([]domain.Room, error) {
	var rooms []domain.Room
	err := r.db.WithContext(ctx).Find(&rooms).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: find all rooms: %w", err)
	}
	return rooms, nil
}

// DeleteEmpty 实现删除所有没有成员记录的房间
func (r *GormRoomRepository) DeleteEmpty(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("NOT EXISTS (SELECT 1 FROM presences WHERE presences.room_id = rooms.id)").
		Delete(&domain.Room{})
	if result.Error != nil {
		return 0, fmt.Errorf("gorm: delete empty rooms: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// ListUsers 实现查询指定房间中全部已认证用户 (去重)
func (r *GormRoomRepository) ListUsers(ctx context.Context, roomID uint) ([]domain.User, error) {
	var users []domain.User
	err := r.db.WithContext(ctx).
		Model(&domain.User{}).
		Joins("JOIN presences ON presences.user_id = users.id").
		Where("presences.room_id = ?", roomID).
		Distinct().
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list users for room %d: %w", roomID, err)
	}
	return users, nil
}
