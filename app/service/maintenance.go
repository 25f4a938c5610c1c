package service

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"video-forge/app/config"
	"video-forge/app/logger"

	"github.com/robfig/cron/v3"
)

// MaintenanceService 周期性维护任务
// 每 30 秒兜底恢复没有调度器的未完成任务，每天清理过期的下载临时文件
type MaintenanceService struct {
	cfg   *config.Config
	tasks *TaskService
	log   *logger.Logger
	cron  *cron.Cron
}

// NewMaintenanceService 创建维护服务
func NewMaintenanceService(cfg *config.Config, tasks *TaskService, log *logger.Logger) *MaintenanceService {
	return &MaintenanceService{
		cfg:   cfg,
		tasks: tasks,
		log:   log,
		cron:  cron.New(cron.WithSeconds()),
	}
}

// Start 启动定时任务
func (s *MaintenanceService) Start() error {
	// 兜底扫描：进程内调度器意外退出或任务被外部恢复时重新接管轮询
	if _, err := s.cron.AddFunc("*/30 * * * * *", s.refreshPending); err != nil {
		return err
	}

	// 每天凌晨清理下载残留的临时文件
	if _, err := s.cron.AddFunc("0 0 3 * * *", s.cleanupTempFiles); err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info("维护服务已启动")
	return nil
}

// Stop 停止定时任务并等待执行中的任务结束
func (s *MaintenanceService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("维护服务已停止")
}

// refreshPending 为没有存活调度器的未完成任务重新启动轮询
func (s *MaintenanceService) refreshPending() {
	s.tasks.ResumeAll()
}

// cleanupTempFiles 删除超过保留时限的下载临时文件
func (s *MaintenanceService) cleanupTempFiles() {
	maxAge := time.Duration(s.cfg.Storage.TempMaxAge) * time.Hour
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}

	entries, err := os.ReadDir(os.TempDir())
	if err != nil {
		s.log.Warnf("读取临时目录失败: %v", err)
		return
	}

	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "video-forge-") || !strings.HasSuffix(name, ".tmp") {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(os.TempDir(), name)); err == nil {
			removed++
		}
	}

	if removed > 0 {
		s.log.Infof("清理了 %d 个过期的下载临时文件", removed)
	}
}
