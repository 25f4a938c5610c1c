package service

import (
	"errors"
	"fmt"
	"os"

	"video-forge/app/logger"
	"video-forge/app/model"

	"gorm.io/gorm"
)

// HistoryService 生成历史记录服务
// 历史是已完成下载任务的只读投影，任务表才是事实来源
type HistoryService struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewHistoryService 创建历史记录服务
func NewHistoryService(db *gorm.DB, log *logger.Logger) *HistoryService {
	return &HistoryService{db: db, log: log}
}

// Append 追加一条历史记录，同一任务只追加一次
// task_id 唯一索引兜底，重复追加直接返回
func (s *HistoryService) Append(taskID, prompt, filePath, displayDate string) error {
	var existing model.HistoryEntry
	err := s.db.Where("task_id = ?", taskID).First(&existing).Error
	if err == nil {
		s.log.Debugf("历史记录已存在，跳过: TaskID=%s", taskID)
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("查询历史记录失败: %w", err)
	}

	entry := model.HistoryEntry{
		TaskID:      taskID,
		Prompt:      prompt,
		FilePath:    filePath,
		DisplayDate: displayDate,
	}
	if err := s.db.Create(&entry).Error; err != nil {
		return fmt.Errorf("追加历史记录失败: %w", err)
	}

	s.log.Infof("历史记录已追加: TaskID=%s, Path=%s", taskID, filePath)
	return nil
}

// List 按时间倒序返回历史记录
func (s *HistoryService) List() ([]model.HistoryEntry, error) {
	var entries []model.HistoryEntry
	if err := s.db.Order("created_at DESC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("查询历史记录失败: %w", err)
	}
	return entries, nil
}

// Delete 删除历史记录及其指向的本地文件
func (s *HistoryService) Delete(id uint) error {
	var entry model.HistoryEntry
	if err := s.db.First(&entry, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("历史记录不存在")
		}
		return fmt.Errorf("查询历史记录失败: %w", err)
	}

	if entry.FilePath != "" {
		if err := os.Remove(entry.FilePath); err != nil && !os.IsNotExist(err) {
			s.log.Warnf("删除历史文件失败: %s, %v", entry.FilePath, err)
		}
	}

	return s.db.Delete(&entry).Error
}

// DeleteByTaskID 按任务ID删除历史记录（任务删除时级联调用），不动文件
func (s *HistoryService) DeleteByTaskID(taskID string) error {
	return s.db.Where("task_id = ?", taskID).Delete(&model.HistoryEntry{}).Error
}
