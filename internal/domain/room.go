package domain

import "time"

// Room 表示一个在线状态房间 (对应一个广播组频道)。
// 房间在第一次 join 时按需创建，成员清零后由 Pruner 回收。
type Room struct {
	ID          uint      `gorm:"primaryKey"`                                              // 房间唯一标识符 (主键)
	ChannelName string    `gorm:"type:varchar(191);uniqueIndex:idx_room_channel;not null"` // 房间的组频道名，全局唯一
	CreatedAt   time.Time `gorm:"autoCreateTime"`                                          // 房间创建时间 (GORM 自动填充)
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}
