package store

import (
	"errors"
	"fmt"
	"time"

	"video-forge/app/model"

	"gorm.io/gorm"
)

// ErrTaskNotFound 更新或删除了不存在的任务
var ErrTaskNotFound = errors.New("任务不存在")

// TaskStore 任务持久化存储，记录级写入由 sqlite 单条语句保证原子性
type TaskStore struct {
	db *gorm.DB
}

// NewTaskStore 创建任务存储
func NewTaskStore(db *gorm.DB) *TaskStore {
	return &TaskStore{db: db}
}

// Create 创建任务记录
func (s *TaskStore) Create(task *model.VideoTask) error {
	if task.TaskID == "" {
		return fmt.Errorf("task_id 不能为空")
	}

	now := time.Now()
	if task.CreateTime.IsZero() {
		task.CreateTime = now
	}
	if task.UpdateTime.IsZero() {
		task.UpdateTime = now
	}

	if err := s.db.Create(task).Error; err != nil {
		return fmt.Errorf("创建任务记录失败: %w", err)
	}
	return nil
}

// Update 按 task_id 整条更新，任务不存在时返回 ErrTaskNotFound 而不是静默成功
func (s *TaskStore) Update(task *model.VideoTask) error {
	if task.TaskID == "" {
		return fmt.Errorf("task_id 不能为空")
	}

	result := s.db.Model(&model.VideoTask{}).
		Where("task_id = ?", task.TaskID).
		Select("*").
		Omit("task_id", "create_time").
		Updates(task)
	if result.Error != nil {
		return fmt.Errorf("更新任务记录失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// Get 按 task_id 查询，未找到返回 (nil, nil)
func (s *TaskStore) Get(taskID string) (*model.VideoTask, error) {
	var task model.VideoTask
	err := s.db.Where("task_id = ?", taskID).First(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询任务失败: %w", err)
	}
	return &task, nil
}

// ListAll 按创建时间倒序返回全部任务
func (s *TaskStore) ListAll() ([]model.VideoTask, error) {
	var tasks []model.VideoTask
	if err := s.db.Order("create_time DESC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("查询任务列表失败: %w", err)
	}
	return tasks, nil
}

// ListPending 返回未进入终态的任务
func (s *TaskStore) ListPending() ([]model.VideoTask, error) {
	var tasks []model.VideoTask
	err := s.db.Where("status IN (?)",
		[]model.TaskStatus{model.TaskStatusPending, model.TaskStatusProcessing}).
		Order("create_time ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("查询待处理任务失败: %w", err)
	}
	return tasks, nil
}

// ListFailed 返回失败的任务
func (s *TaskStore) ListFailed() ([]model.VideoTask, error) {
	var tasks []model.VideoTask
	err := s.db.Where("status = ?", model.TaskStatusFailed).
		Order("create_time ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("查询失败任务失败: %w", err)
	}
	return tasks, nil
}

// Delete 删除任务记录
func (s *TaskStore) Delete(taskID string) error {
	result := s.db.Where("task_id = ?", taskID).Delete(&model.VideoTask{})
	if result.Error != nil {
		return fmt.Errorf("删除任务记录失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}
