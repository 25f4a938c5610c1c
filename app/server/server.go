package server

import (
	"context"
	"net/http"

	"video-forge/app/config"
	"video-forge/app/database"
	"video-forge/app/filewatcher"
	"video-forge/app/handler"
	"video-forge/app/logger"
	"video-forge/app/middleware"
	"video-forge/app/service"
	"video-forge/app/settings"
	"video-forge/app/store"
	"video-forge/app/videoapi"

	"github.com/gin-gonic/gin"
)

// Server 表示 HTTP 服务器
type Server struct {
	Config *config.Config
	Logger *logger.Logger
	gin    *gin.Engine
	http   *http.Server

	settings    *settings.Store
	client      *videoapi.Client
	tasks       *service.TaskService
	maintenance *service.MaintenanceService
	watcher     *filewatcher.Watcher
}

// New 创建一个新的 Server 实例
func New(cfg *config.Config, log *logger.Logger) *Server {
	router := gin.Default()

	db := database.GetDB()
	settingStore := settings.NewStore(db, cfg, log)
	taskStore := store.NewTaskStore(db)
	historyService := service.NewHistoryService(db, log)

	client := videoapi.New(videoapi.Options{
		SubmitURL: settingStore.SubmitURL(),
		QueryURL:  settingStore.QueryURL(),
	}, log)

	policy := service.PollPolicy{
		InitialInterval: cfg.Poll.InitialInterval(),
		MaxInterval:     cfg.Poll.MaxInterval(),
		MaxWait:         cfg.Poll.MaxWait(),
	}
	tasks := service.NewTaskService(taskStore, client, settingStore, historyService, policy, log)

	s := &Server{
		gin: router,
		http: &http.Server{
			Addr:    ":" + cfg.Server.Port,
			Handler: router,
		},
		Config:      cfg,
		Logger:      log,
		settings:    settingStore,
		client:      client,
		tasks:       tasks,
		maintenance: service.NewMaintenanceService(cfg, tasks, log),
		watcher:     filewatcher.New(settingStore.OutputDir(), tasks, log),
	}

	s.setupRoutes(taskStore, historyService)

	return s
}

// Start 启动服务器
func (s *Server) Start() error {
	// 恢复上次进程退出时遗留的未完成任务
	resumed := s.tasks.ResumeAll()
	if resumed > 0 {
		s.Logger.Infof("启动恢复 %d 个未完成任务的轮询", resumed)
	}

	// 超时失败的任务自动重试一轮
	retried := s.tasks.RetryFailedTasks()
	if retried > 0 {
		s.Logger.Infof("启动重试 %d 个超时失败任务", retried)
	}

	if err := s.maintenance.Start(); err != nil {
		return err
	}

	if err := s.watcher.Start(); err != nil {
		// 保存目录不存在等情况不阻塞启动
		s.Logger.Warnf("启动制品目录监听失败: %v", err)
	}

	s.Logger.Infof("在端口 %s 启动服务器", s.http.Addr)
	return s.http.ListenAndServe()
}

// Shutdown 优雅关闭服务器
func (s *Server) Shutdown(ctx context.Context) error {
	s.watcher.Stop()
	s.maintenance.Stop()
	s.tasks.Stop()

	// 关闭数据库连接
	if err := database.Close(); err != nil {
		s.Logger.Errorf("关闭数据库连接失败: %v", err)
	}
	return s.http.Shutdown(ctx)
}

// setupRoutes 设置API路由
func (s *Server) setupRoutes(taskStore *store.TaskStore, historyService *service.HistoryService) {
	authHandler := handler.NewAuthHandler(s.Config)
	taskHandler := handler.NewTaskHandler(s.tasks, taskStore, s.client, s.settings, s.Logger)
	historyHandler := handler.NewHistoryHandler(historyService)
	settingsHandler := handler.NewSettingsHandler(s.settings, s.client)

	// API路由组
	api := s.gin.Group("/api")

	// 认证相关路由（不需要JWT验证）
	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.RefreshToken)
	}

	// 需要JWT验证的路由
	protected := api.Group("/")
	protected.Use(middleware.JWTAuth(s.Config))
	{
		// 用户相关
		protected.GET("/me", authHandler.Me)

		// 生成任务相关路由
		tasks := protected.Group("/tasks")
		{
			tasks.POST("/", taskHandler.Submit)
			tasks.GET("/", taskHandler.List)
			tasks.GET("/remote", taskHandler.Remote)
			tasks.POST("/lookup", taskHandler.Lookup)
			tasks.POST("/retry-failed", taskHandler.RetryFailed)
			tasks.GET("/:id", taskHandler.Get)
			tasks.DELETE("/:id", taskHandler.Delete)
			tasks.POST("/:id/refresh", taskHandler.Refresh)
			tasks.POST("/:id/repair", taskHandler.Repair)
		}

		// 生成历史相关路由
		history := protected.Group("/history")
		{
			history.GET("/", historyHandler.List)
			history.DELETE("/:id", historyHandler.Delete)
		}

		// 系统设置相关路由
		settingsGroup := protected.Group("/settings")
		{
			settingsGroup.GET("/", settingsHandler.List)
			settingsGroup.PUT("/", settingsHandler.Update)
			settingsGroup.POST("/reload", settingsHandler.Reload)
		}
	}
}
