package model

import (
	"encoding/json"
	"time"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"    // 等待中（外部查询导入，尚未确认远端状态）
	TaskStatusProcessing TaskStatus = "processing" // 生成中
	TaskStatusCompleted  TaskStatus = "completed"  // 已完成
	TaskStatusFailed     TaskStatus = "failed"     // 失败
)

// ExtraParam 额外的生成参数，按提交顺序保存
type ExtraParam struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// VideoTask 视频生成任务模型
type VideoTask struct {
	TaskID string `json:"task_id" gorm:"primarykey;size:128"`
	Prompt string `json:"prompt" gorm:"type:text"`
	APIKey string `json:"-" gorm:"column:api_key;type:text"` // 提交时使用的密钥，重试/恢复时复用

	// 请求参数快照
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Resolution  string `json:"resolution" gorm:"size:20"`
	AspectRatio string `json:"aspect_ratio" gorm:"size:20"`
	Duration    int    `json:"duration"`
	CameraFixed bool   `json:"camera_fixed"`
	Seed        int    `json:"seed"`
	ImagePath   string `json:"image_path" gorm:"type:text"` // 图生视频的首帧图片路径，文生视频为空
	ExtraParams string `json:"extra_params" gorm:"type:text"`

	// 状态与结果
	Status        TaskStatus `json:"status" gorm:"size:20;default:pending;index"`
	ErrorMessage  string     `json:"error_message" gorm:"type:text"`
	VideoURL      string     `json:"video_url" gorm:"type:text"`
	LocalFilePath string     `json:"local_file_path" gorm:"type:text"`

	// 时间戳
	CreateTime   time.Time  `json:"create_time" gorm:"index"`
	UpdateTime   time.Time  `json:"update_time"`
	CompleteTime *time.Time `json:"complete_time"` // 仅在进入终态时设置
}

// TableName 指定表名
func (VideoTask) TableName() string {
	return "video_tasks"
}

// IsFinished 是否已进入终态（终态任务不再轮询）
func (t *VideoTask) IsFinished() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusFailed
}

// NeedsArtifact 已完成但本地缺少制品文件
func (t *VideoTask) NeedsArtifact() bool {
	return t.Status == TaskStatusCompleted && t.VideoURL != "" && t.LocalFilePath == ""
}

// SetExtraParams 序列化额外参数，保持提交顺序
func (t *VideoTask) SetExtraParams(params []ExtraParam) error {
	if len(params) == 0 {
		t.ExtraParams = ""
		return nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return err
	}
	t.ExtraParams = string(data)
	return nil
}

// GetExtraParams 反序列化额外参数
func (t *VideoTask) GetExtraParams() []ExtraParam {
	if t.ExtraParams == "" {
		return nil
	}
	var params []ExtraParam
	if err := json.Unmarshal([]byte(t.ExtraParams), &params); err != nil {
		return nil
	}
	return params
}

// StatusText 状态的展示文本
func (t *VideoTask) StatusText() string {
	switch t.Status {
	case TaskStatusPending:
		return "等待中"
	case TaskStatusProcessing:
		return "处理中"
	case TaskStatusCompleted:
		return "已完成"
	case TaskStatusFailed:
		return "失败"
	default:
		return "未知"
	}
}
