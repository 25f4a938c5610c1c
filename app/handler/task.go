package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	"video-forge/app/logger"
	"video-forge/app/model"
	"video-forge/app/service"
	"video-forge/app/settings"
	"video-forge/app/store"
	"video-forge/app/videoapi"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
)

// TaskHandler 任务处理器
type TaskHandler struct {
	tasks     *service.TaskService
	taskStore *store.TaskStore
	client    *videoapi.Client
	settings  *settings.Store
	log       *logger.Logger

	// 批量查询结果短暂缓存，界面反复刷新时不重复打远端
	remoteCache *gocache.Cache
}

// NewTaskHandler 创建任务处理器
func NewTaskHandler(
	tasks *service.TaskService,
	taskStore *store.TaskStore,
	client *videoapi.Client,
	settingStore *settings.Store,
	log *logger.Logger,
) *TaskHandler {
	return &TaskHandler{
		tasks:       tasks,
		taskStore:   taskStore,
		client:      client,
		settings:    settingStore,
		log:         log,
		remoteCache: gocache.New(30*time.Second, time.Minute),
	}
}

// SubmitRequest 提交生成任务的请求
type SubmitRequest struct {
	Prompt      string             `json:"prompt" binding:"required"`
	APIKey      string             `json:"api_key"`
	Width       int                `json:"width"`
	Height      int                `json:"height"`
	Resolution  string             `json:"resolution"`
	AspectRatio string             `json:"aspect_ratio"`
	Duration    int                `json:"duration"`
	CameraFixed bool               `json:"camera_fixed"`
	Seed        int                `json:"seed"`
	ImagePath   string             `json:"image_path"`
	Extra       []model.ExtraParam `json:"extra"`
}

// Submit 提交生成任务
func (h *TaskHandler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 400, "请求参数错误: "+err.Error())
		return
	}

	params := videoapi.DefaultParams()
	if req.Width > 0 {
		params.Width = req.Width
	}
	if req.Height > 0 {
		params.Height = req.Height
	}
	if req.Resolution != "" {
		params.Resolution = req.Resolution
	}
	if req.AspectRatio != "" {
		params.AspectRatio = req.AspectRatio
	}
	if req.Duration > 0 {
		params.Duration = req.Duration
	}
	params.CameraFixed = req.CameraFixed
	if req.Seed != 0 {
		params.Seed = req.Seed
	}
	params.ImagePath = req.ImagePath
	params.Extra = req.Extra

	task, err := h.tasks.Submit(req.APIKey, req.Prompt, params)
	if err != nil {
		if errors.Is(err, videoapi.ErrNoTaskID) {
			fail(c, http.StatusBadGateway, 502, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, 500, "提交失败: "+err.Error())
		return
	}

	success(c, task, "任务已提交")
}

// List 任务列表，按创建时间倒序
func (h *TaskHandler) List(c *gin.Context) {
	tasks, err := h.taskStore.ListAll()
	if err != nil {
		fail(c, http.StatusInternalServerError, 500, "获取任务列表失败")
		return
	}
	success(c, tasks, "")
}

// taskDetail 任务详情响应，附带轮询进度估计和制品缺失提示
type taskDetail struct {
	*model.VideoTask
	Polling         bool `json:"polling"`
	Progress        int  `json:"progress,omitempty"`
	ArtifactMissing bool `json:"artifact_missing,omitempty"`
}

// Get 任务详情
func (h *TaskHandler) Get(c *gin.Context) {
	taskID := c.Param("id")

	task, err := h.taskStore.Get(taskID)
	if err != nil {
		fail(c, http.StatusInternalServerError, 500, "查询任务失败")
		return
	}
	if task == nil {
		fail(c, http.StatusNotFound, 404, "任务不存在")
		return
	}

	detail := taskDetail{VideoTask: task}
	if progress, ok := h.tasks.SchedulerProgress(taskID); ok {
		detail.Polling = true
		detail.Progress = progress
	}

	// 本地制品被删除时提示可修复
	if task.LocalFilePath != "" {
		if _, err := os.Stat(task.LocalFilePath); err != nil {
			detail.ArtifactMissing = true
			h.log.Debugf("本地制品缺失: TaskID=%s", taskID)
		}
	}

	success(c, detail, "")
}

// Delete 删除任务及本地制品
func (h *TaskHandler) Delete(c *gin.Context) {
	taskID := c.Param("id")

	if err := h.tasks.Delete(taskID); err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			fail(c, http.StatusNotFound, 404, "任务不存在")
			return
		}
		fail(c, http.StatusInternalServerError, 500, "删除任务失败: "+err.Error())
		return
	}

	success(c, nil, "任务已删除")
}

// Refresh 手动刷新任务状态
func (h *TaskHandler) Refresh(c *gin.Context) {
	taskID := c.Param("id")

	if err := h.tasks.RefreshTask(taskID); err != nil {
		fail(c, http.StatusInternalServerError, 500, "刷新失败: "+err.Error())
		return
	}

	task, err := h.taskStore.Get(taskID)
	if err != nil || task == nil {
		fail(c, http.StatusNotFound, 404, "任务不存在")
		return
	}
	success(c, task, "刷新完成")
}

// Repair 补救下载缺失的本地制品
func (h *TaskHandler) Repair(c *gin.Context) {
	taskID := c.Param("id")

	if err := h.tasks.EnsureLocalArtifact(taskID); err != nil {
		fail(c, http.StatusInternalServerError, 500, "补救下载失败: "+err.Error())
		return
	}

	task, _ := h.taskStore.Get(taskID)
	success(c, task, "制品已恢复")
}

// RetryFailed 重试因超时失败的任务
func (h *TaskHandler) RetryFailed(c *gin.Context) {
	count := h.tasks.RetryFailedTasks()
	success(c, gin.H{"retried": count}, "重试完成")
}

// LookupRequest 外部任务查询请求
type LookupRequest struct {
	TaskID string `json:"task_id" binding:"required"`
	APIKey string `json:"api_key"`
}

// Lookup 按任务ID从远端查询并导入本地
func (h *TaskHandler) Lookup(c *gin.Context) {
	var req LookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 400, "请求参数错误: "+err.Error())
		return
	}

	task, err := h.tasks.LookupTask(req.APIKey, req.TaskID)
	if err != nil {
		fail(c, http.StatusBadGateway, 502, "查询失败: "+err.Error())
		return
	}

	success(c, task, "查询完成")
}

// Remote 批量查询远端全部任务，结果缓存 30 秒
func (h *TaskHandler) Remote(c *gin.Context) {
	apiKey := c.Query("api_key")
	if apiKey == "" {
		apiKey = h.settings.APIKey()
	}
	if apiKey == "" {
		fail(c, http.StatusBadRequest, 400, "未配置 API Key")
		return
	}

	if cached, ok := h.remoteCache.Get(apiKey); ok {
		success(c, json.RawMessage(cached.(string)), "")
		return
	}

	raw, taskID, result, err := h.client.PollAll(apiKey)
	if err != nil {
		fail(c, http.StatusBadGateway, 502, "批量查询失败: "+err.Error())
		return
	}

	// 响应恰好描述单个任务时顺带落库
	if taskID != "" && result != nil {
		if err := h.tasks.Reconcile(taskID, *result); err != nil {
			h.log.Warnf("批量查询结果落库失败: TaskID=%s, %v", taskID, err)
		}
	}

	h.remoteCache.SetDefault(apiKey, string(raw))
	success(c, raw, "")
}
