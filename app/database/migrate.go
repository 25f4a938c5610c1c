package database

import "video-forge/app/model"

func AutoMigrate() error {
	// 自动迁移表结构
	return DB.AutoMigrate(
		&model.SystemConfig{},
		&model.User{},
		&model.VideoTask{},
		&model.HistoryEntry{},
	)
}
