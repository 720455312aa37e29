package domain

import "time"

// Presence 表示某个连接当前正位于某个房间中的成员记录。
// (room_id, channel_name) 组合唯一：同一连接在同一房间最多只有一条记录，
// 但一个连接可以同时出现在多个房间 (多条记录)。
type Presence struct {
	ID          uint      `gorm:"primaryKey"`                                                 // 成员记录唯一标识符 (主键)
	RoomID      uint      `gorm:"not null;uniqueIndex:idx_presence_room_channel"`             // 所属房间 ID (外键关联到 Room.ID)
	ChannelName string    `gorm:"type:varchar(191);not null;uniqueIndex:idx_presence_room_channel;index:idx_presence_channel"` // 连接的回复频道名 (由传输层提供的不透明标识)
	UserID      *uint     `gorm:"index:idx_presence_user"`                                    // 关联的用户 ID，匿名连接为 NULL
	LastSeen    time.Time `gorm:"index:idx_presence_last_seen;not null"`                      // 最后一次心跳/消息的时间，创建时默认为当前时间

	Room Room  `gorm:"foreignKey:RoomID"` // 所属房间 (用于 LeaveAll 时的关联查询)
	User *User `gorm:"foreignKey:UserID"` // 关联用户 (可选)
}
