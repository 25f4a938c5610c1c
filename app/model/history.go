package model

import "time"

// HistoryEntry 生成历史记录，完成下载的任务的轻量投影
// task_id 唯一索引保证每次成功下载只追加一条
type HistoryEntry struct {
	ID          uint      `json:"id" gorm:"primarykey"`
	TaskID      string    `json:"task_id" gorm:"uniqueIndex;size:128;not null"`
	Prompt      string    `json:"prompt" gorm:"type:text"`
	FilePath    string    `json:"file_path" gorm:"type:text;not null"`
	DisplayDate string    `json:"display_date" gorm:"size:20"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName 指定表名
func (HistoryEntry) TableName() string {
	return "history_entries"
}
