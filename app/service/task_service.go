package service

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"video-forge/app/logger"
	"video-forge/app/model"
	"video-forge/app/settings"
	"video-forge/app/store"
	"video-forge/app/utils/pathhelper"
	"video-forge/app/videoapi"
)

// RemoteClient 任务服务依赖的远程接口能力
type RemoteClient interface {
	Submit(apiKey, prompt string, params *videoapi.GenerateParams) (string, error)
	PollOne(apiKey, taskID string) (videoapi.PollResult, error)
	Download(url string) (string, error)
}

// TaskService 任务编排服务
// 唯一允许修改任务记录的组件：提交、轮询结果落库、下载搬移、重启恢复都经由它
type TaskService struct {
	store    *store.TaskStore
	client   RemoteClient
	settings *settings.Store
	history  *HistoryService
	policy   PollPolicy
	log      *logger.Logger

	mu         sync.Mutex
	schedulers map[string]*PollScheduler

	// 同一任务的所有状态变更串行化，避免定时轮询与手动刷新/补救下载互相踩踏
	taskLocks sync.Map // taskID → *sync.Mutex
}

// NewTaskService 创建任务编排服务
func NewTaskService(
	taskStore *store.TaskStore,
	client RemoteClient,
	settingStore *settings.Store,
	history *HistoryService,
	policy PollPolicy,
	log *logger.Logger,
) *TaskService {
	return &TaskService{
		store:      taskStore,
		client:     client,
		settings:   settingStore,
		history:    history,
		policy:     policy,
		log:        log,
		schedulers: make(map[string]*PollScheduler),
	}
}

// lockTask 获取任务级互斥锁，返回解锁函数
func (s *TaskService) lockTask(taskID string) func() {
	v, _ := s.taskLocks.LoadOrStore(taskID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Submit 提交生成任务：远端受理成功才落库，之后立即开始轮询
// 提交失败不写任何记录
func (s *TaskService) Submit(apiKey, prompt string, params *videoapi.GenerateParams) (*model.VideoTask, error) {
	if apiKey == "" {
		apiKey = s.settings.APIKey()
	}
	if apiKey == "" {
		return nil, fmt.Errorf("未配置 API Key")
	}
	if params == nil {
		params = videoapi.DefaultParams()
	}

	taskID, err := s.client.Submit(apiKey, prompt, params)
	if err != nil {
		s.log.Errorf("任务提交失败: %v", err)
		return nil, err
	}

	now := time.Now()
	task := &model.VideoTask{
		TaskID:      taskID,
		Prompt:      prompt,
		APIKey:      apiKey,
		Width:       params.Width,
		Height:      params.Height,
		Resolution:  params.Resolution,
		AspectRatio: params.AspectRatio,
		Duration:    params.Duration,
		CameraFixed: params.CameraFixed,
		Seed:        params.Seed,
		ImagePath:   params.ImagePath,
		Status:      model.TaskStatusProcessing,
		CreateTime:  now,
		UpdateTime:  now,
	}
	if err := task.SetExtraParams(params.Extra); err != nil {
		s.log.Warnf("序列化额外参数失败: %v", err)
	}

	if err := s.store.Create(task); err != nil {
		return nil, err
	}

	s.startScheduler(taskID, apiKey)
	s.log.Infof("任务已创建并开始轮询: TaskID=%s", taskID)
	return task, nil
}

// startScheduler 为任务启动轮询调度器，已有存活调度器时不重复启动
func (s *TaskService) startScheduler(taskID, apiKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.schedulers[taskID]; exists {
		return
	}

	poller, ok := s.client.(Poller)
	if !ok {
		// RemoteClient 自身满足 Poller，此分支只会在测试桩缺方法时出现
		s.log.Errorf("远程客户端不支持轮询: TaskID=%s", taskID)
		return
	}

	sched := NewPollScheduler(taskID, apiKey, poller, s.policy, s.log,
		func(id string, result videoapi.PollResult) {
			if err := s.Reconcile(id, result); err != nil {
				s.log.Errorf("应用轮询结果失败: TaskID=%s, %v", id, err)
			}
		},
		s.handleTimeout,
	)
	s.schedulers[taskID] = sched
	sched.Start()

	// 调度循环退出后兜底清理注册表
	// 终态落库失败时条目若残留，恢复扫描会永远跳过这个任务
	go func() {
		<-sched.Done()
		s.mu.Lock()
		if s.schedulers[taskID] == sched {
			delete(s.schedulers, taskID)
		}
		s.mu.Unlock()
	}()
}

// removeScheduler 停止并移除调度器
func (s *TaskService) removeScheduler(taskID string) {
	s.mu.Lock()
	sched, ok := s.schedulers[taskID]
	if ok {
		delete(s.schedulers, taskID)
	}
	s.mu.Unlock()

	if ok {
		sched.Stop()
	}
}

// HasScheduler 任务是否有存活的调度器
func (s *TaskService) HasScheduler(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.schedulers[taskID]
	return ok
}

// SchedulerProgress 任务轮询进度估计（仅供展示）
func (s *TaskService) SchedulerProgress(taskID string) (int, bool) {
	s.mu.Lock()
	sched, ok := s.schedulers[taskID]
	s.mu.Unlock()
	if !ok {
		return 0, false
	}
	return sched.Progress(), true
}

// Reconcile 将一次轮询结果落库，幂等：任务已是终态时直接忽略
// 迟到的结果（调度器停止后才返回的请求）也会被这里挡住
func (s *TaskService) Reconcile(taskID string, result videoapi.PollResult) error {
	unlock := s.lockTask(taskID)
	triggerDownload := false

	err := func() error {
		defer unlock()

		task, err := s.store.Get(taskID)
		if err != nil {
			return err
		}
		if task == nil {
			s.log.Warnf("轮询结果对应的任务不存在: TaskID=%s", taskID)
			return nil
		}
		if task.IsFinished() {
			return nil
		}

		now := time.Now()
		task.UpdateTime = now

		switch result.State {
		case videoapi.PollSucceeded:
			task.Status = model.TaskStatusCompleted
			task.VideoURL = result.VideoURL
			task.CompleteTime = &now
			if err := s.store.Update(task); err != nil {
				return err
			}
			s.removeScheduler(taskID)
			triggerDownload = true
			s.log.Infof("任务生成成功: TaskID=%s, URL=%s", taskID, result.VideoURL)

		case videoapi.PollFailed:
			task.Status = model.TaskStatusFailed
			task.ErrorMessage = result.Reason
			if task.ErrorMessage == "" {
				task.ErrorMessage = "未知错误"
			}
			task.CompleteTime = &now
			if err := s.store.Update(task); err != nil {
				return err
			}
			s.removeScheduler(taskID)
			s.log.Warnf("任务生成失败: TaskID=%s, Reason=%s", taskID, task.ErrorMessage)

		default:
			// 处理中或未知状态：保持 Processing，只推进更新时间
			task.Status = model.TaskStatusProcessing
			if err := s.store.Update(task); err != nil {
				return err
			}
		}
		return nil
	}()
	if err != nil {
		return err
	}

	// 下载在任务锁外发起，下载流程内部会重新取锁
	if triggerDownload {
		go s.downloadArtifact(taskID)
	}
	return nil
}

// handleTimeout 超时落库：标记失败并写入可被重试扫描识别的标记
func (s *TaskService) handleTimeout(taskID string) {
	unlock := s.lockTask(taskID)
	defer unlock()

	task, err := s.store.Get(taskID)
	if err != nil || task == nil || task.IsFinished() {
		return
	}

	now := time.Now()
	task.Status = model.TaskStatusFailed
	task.ErrorMessage = fmt.Sprintf("查询超时（timeout）：等待超过 %.0f 秒仍未完成", s.policy.MaxWait.Seconds())
	task.UpdateTime = now
	task.CompleteTime = &now

	if err := s.store.Update(task); err != nil {
		s.log.Errorf("写入超时状态失败: TaskID=%s, %v", taskID, err)
	}
	s.removeScheduler(taskID)
}

// downloadArtifact 下载制品并搬移到输出目录，追加历史记录
// 与补救下载共用任务锁，同一任务不会有两个下载同时进行
func (s *TaskService) downloadArtifact(taskID string) {
	unlock := s.lockTask(taskID)
	defer unlock()

	task, err := s.store.Get(taskID)
	if err != nil || task == nil {
		return
	}
	if task.Status != model.TaskStatusCompleted || task.VideoURL == "" {
		return
	}

	// 本地文件仍在则无需重复下载
	if task.LocalFilePath != "" {
		if _, err := os.Stat(task.LocalFilePath); err == nil {
			return
		}
	}

	tempPath, err := s.client.Download(task.VideoURL)
	if err != nil {
		// 任务保持 Completed 且带 videoUrl，后续可走补救下载
		s.log.Errorf("制品下载失败: TaskID=%s, %v", taskID, err)
		return
	}

	if err := s.relocateArtifact(task, tempPath); err != nil {
		s.log.Errorf("制品搬移失败: TaskID=%s, %v", taskID, err)
	}
}

// relocateArtifact 将临时文件搬移到输出目录并落库，历史记录只追加一次
func (s *TaskService) relocateArtifact(task *model.VideoTask, tempPath string) error {
	outputDir := s.settings.OutputDir()
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("创建输出目录失败: %w", err)
	}

	finalPath := filepath.Join(outputDir, pathhelper.ArtifactFileName(task.TaskID, time.Now()))
	if err := moveFile(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("搬移制品失败: %w", err)
	}

	task.LocalFilePath = finalPath
	task.UpdateTime = time.Now()
	if err := s.store.Update(task); err != nil {
		return err
	}

	if err := s.history.Append(task.TaskID, task.Prompt, finalPath,
		time.Now().Format("01-02 15:04")); err != nil {
		s.log.Warnf("追加历史记录失败: TaskID=%s, %v", task.TaskID, err)
	}

	s.log.Infof("制品已就位: TaskID=%s, Path=%s", task.TaskID, finalPath)
	return nil
}

// moveFile 跨设备安全的文件搬移
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	// 临时目录与输出目录可能不在同一文件系统，回退到复制
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return os.Remove(src)
}

// EnsureLocalArtifact 补救下载：已完成但本地缺少制品的任务重新下载
// 同步执行，供手动触发和文件丢失事件使用
func (s *TaskService) EnsureLocalArtifact(taskID string) error {
	task, err := s.store.Get(taskID)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("任务不存在: %s", taskID)
	}
	if task.Status != model.TaskStatusCompleted || task.VideoURL == "" {
		return fmt.Errorf("任务无可下载的制品: %s", taskID)
	}

	s.downloadArtifact(taskID)

	task, err = s.store.Get(taskID)
	if err != nil {
		return err
	}
	if task.LocalFilePath == "" {
		return fmt.Errorf("补救下载未成功: %s", taskID)
	}
	return nil
}

// HandleArtifactMissing 本地制品被外部删除时清空路径，使补救下载可被触发
func (s *TaskService) HandleArtifactMissing(taskID, path string) {
	unlock := s.lockTask(taskID)
	defer unlock()

	task, err := s.store.Get(taskID)
	if err != nil || task == nil {
		return
	}
	if task.LocalFilePath == "" || task.LocalFilePath != path {
		return
	}

	task.LocalFilePath = ""
	task.UpdateTime = time.Now()
	if err := s.store.Update(task); err != nil {
		s.log.Errorf("清除制品路径失败: TaskID=%s, %v", taskID, err)
		return
	}
	s.log.Warnf("本地制品已被删除: TaskID=%s, Path=%s", taskID, path)
}

// ResumeAll 重启恢复：为所有未终态任务重新启动轮询
// 每个任务的超时时钟从恢复时刻起算，而不是最初的提交时刻，
// 否则被重启打断的长任务会被立即判为超时
func (s *TaskService) ResumeAll() int {
	tasks, err := s.store.ListPending()
	if err != nil {
		s.log.Errorf("查询待恢复任务失败: %v", err)
		return 0
	}

	resumed := 0
	for _, task := range tasks {
		if task.APIKey == "" {
			s.log.Warnf("任务缺少 API Key，无法恢复轮询: TaskID=%s", task.TaskID)
			continue
		}
		if s.HasScheduler(task.TaskID) {
			continue
		}
		s.startScheduler(task.TaskID, task.APIKey)
		resumed++
	}

	if resumed > 0 {
		s.log.Infof("已恢复 %d 个未完成任务的轮询", resumed)
	}
	return resumed
}

// RetryFailedTasks 启动时的一次性扫描：因超时失败的任务重新进入轮询
// 不产生新的任务ID，清除旧的错误信息
func (s *TaskService) RetryFailedTasks() int {
	tasks, err := s.store.ListFailed()
	if err != nil {
		s.log.Errorf("查询失败任务失败: %v", err)
		return 0
	}

	retried := 0
	for _, task := range tasks {
		if !isTimeoutError(task.ErrorMessage) {
			continue
		}
		if task.APIKey == "" {
			continue
		}

		unlock := s.lockTask(task.TaskID)
		task.Status = model.TaskStatusProcessing
		task.ErrorMessage = ""
		task.CompleteTime = nil
		task.UpdateTime = time.Now()
		err := s.store.Update(&task)
		unlock()

		if err != nil {
			s.log.Errorf("重置超时任务失败: TaskID=%s, %v", task.TaskID, err)
			continue
		}

		s.startScheduler(task.TaskID, task.APIKey)
		retried++
		s.log.Infof("超时任务已重新进入轮询: TaskID=%s", task.TaskID)
	}
	return retried
}

// isTimeoutError 识别超时标记，中英文都接受
func isTimeoutError(message string) bool {
	return strings.Contains(message, "超时") || strings.Contains(message, "timeout")
}

// RefreshTask 手动刷新：未终态任务立即轮询一次并落库；
// 已完成但缺制品的任务走补救下载
func (s *TaskService) RefreshTask(taskID string) error {
	task, err := s.store.Get(taskID)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("任务不存在: %s", taskID)
	}

	if task.IsFinished() {
		if task.NeedsArtifact() {
			return s.EnsureLocalArtifact(taskID)
		}
		return nil
	}

	apiKey := task.APIKey
	if apiKey == "" {
		apiKey = s.settings.APIKey()
	}

	result, err := s.client.PollOne(apiKey, taskID)
	if err != nil {
		return err
	}
	return s.Reconcile(taskID, result)
}

// LookupTask 外部查询导入：数据库中没有的任务ID建立一条空快照记录
// 请求参数字段留空，标记该任务并非本地发起
func (s *TaskService) LookupTask(apiKey, taskID string) (*model.VideoTask, error) {
	if apiKey == "" {
		apiKey = s.settings.APIKey()
	}

	result, err := s.client.PollOne(apiKey, taskID)
	if err != nil {
		return nil, err
	}

	task, err := s.store.Get(taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		now := time.Now()
		task = &model.VideoTask{
			TaskID:     taskID,
			APIKey:     apiKey,
			Status:     model.TaskStatusPending,
			CreateTime: now, // 以查询时间作为创建时间
			UpdateTime: now,
		}
		if err := s.store.Create(task); err != nil {
			return nil, err
		}
	}

	if err := s.Reconcile(taskID, result); err != nil {
		return nil, err
	}

	// 未终态的导入任务也进入常规轮询
	if !result.Terminal() {
		s.startScheduler(taskID, apiKey)
	}

	return s.store.Get(taskID)
}

// Delete 删除任务：停止轮询、移除本地制品文件、清理历史投影
func (s *TaskService) Delete(taskID string) error {
	s.removeScheduler(taskID)

	unlock := s.lockTask(taskID)
	defer unlock()

	task, err := s.store.Get(taskID)
	if err != nil {
		return err
	}
	if task == nil {
		return store.ErrTaskNotFound
	}

	if task.LocalFilePath != "" {
		if err := os.Remove(task.LocalFilePath); err != nil && !os.IsNotExist(err) {
			s.log.Warnf("删除制品文件失败: %s, %v", task.LocalFilePath, err)
		}
	}

	if err := s.history.DeleteByTaskID(taskID); err != nil {
		s.log.Warnf("清理历史记录失败: TaskID=%s, %v", taskID, err)
	}

	return s.store.Delete(taskID)
}

// Stop 停止全部调度器（进程退出时调用）
func (s *TaskService) Stop() {
	s.mu.Lock()
	schedulers := make([]*PollScheduler, 0, len(s.schedulers))
	for _, sched := range s.schedulers {
		schedulers = append(schedulers, sched)
	}
	s.schedulers = make(map[string]*PollScheduler)
	s.mu.Unlock()

	for _, sched := range schedulers {
		sched.Stop()
	}
}
