package setup

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"channel-presence/internal/domain"
)

// MigrateDB handles all database migrations using the provided GORM DB instance.
// 返回错误以便调用者知道迁移是否成功。
func MigrateDB(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("cannot migrate database with nil DB connection")
	}

	// Users 表交给 AutoMigrate (索引标签已在 domain.User 上声明)
	if err := db.AutoMigrate(&domain.User{}); err != nil {
		return fmt.Errorf("failed to migrate users table: %w", err)
	}

	// Rooms 和 Presences 表用原生 SQL 创建，
	// 以保证唯一约束和外键的列长度/级联行为完全可控。
	if err := migrateRoomsTable(db); err != nil {
		return fmt.Errorf("failed to migrate rooms table: %w", err)
	}
	if err := migratePresencesTable(db); err != nil {
		return fmt.Errorf("failed to migrate presences table: %w", err)
	}

	logrus.Info("Database migration completed successfully")
	return nil
}

func migrateRoomsTable(db *gorm.DB) error {
	var count int64
	db.Raw("SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = 'rooms'").Count(&count)
	if count > 0 {
		// 表已存在，AutoMigrate 负责补充缺失的列/索引
		if err := db.AutoMigrate(&domain.Room{}); err != nil {
			return fmt.Errorf("failed to auto-migrate rooms table: %w", err)
		}
		return nil
	}

	sql := `
	CREATE TABLE rooms (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		channel_name VARCHAR(191) NOT NULL,
		created_at DATETIME(3),
		updated_at DATETIME(3),
		UNIQUE INDEX idx_room_channel (channel_name)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_general_ci;
	`
	if err := db.Exec(sql).Error; err != nil {
		logrus.Errorf("Failed to create rooms table: %v", err)
		return fmt.Errorf("failed to create rooms table: %w", err)
	}
	logrus.Info("Rooms table created successfully")
	return nil
}

func migratePresencesTable(db *gorm.DB) error {
	var count int64
	db.Raw("SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = 'presences'").Count(&count)
	if count > 0 {
		if err := db.AutoMigrate(&domain.Presence{}); err != nil {
			return fmt.Errorf("failed to auto-migrate presences table: %w", err)
		}
		return nil
	}

	// 外键 ON DELETE CASCADE：房间被清理时其成员记录一并消失，
	// 用户被删除时其认证关联清空为匿名没有意义，直接级联删除。
	sql := `
	CREATE TABLE presences (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		room_id BIGINT UNSIGNED NOT NULL,
		channel_name VARCHAR(191) NOT NULL,
		user_id BIGINT UNSIGNED NULL,
		last_seen DATETIME(3) NOT NULL,
		INDEX idx_presence_channel (channel_name),
		INDEX idx_presence_last_seen (last_seen),
		INDEX idx_presence_user (user_id),
		UNIQUE INDEX idx_presence_room_channel (room_id, channel_name),
		CONSTRAINT fk_presences_room FOREIGN KEY (room_id) REFERENCES rooms(id) ON DELETE CASCADE,
		CONSTRAINT fk_presences_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_general_ci;
	`
	if err := db.Exec(sql).Error; err != nil {
		logrus.Errorf("Failed to create presences table: %v", err)
		return fmt.Errorf("failed to create presences table: %w", err)
	}
	logrus.Info("Presences table created successfully")
	return nil
}
