package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"video-forge/app/config"
	"video-forge/app/logger"
	"video-forge/app/model"
	"video-forge/app/service"
	"video-forge/app/settings"
	"video-forge/app/store"
	"video-forge/app/videoapi"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// stubRemote 不应被详情接口触达的远程客户端桩
type stubRemote struct{}

func (stubRemote) Submit(apiKey, prompt string, params *videoapi.GenerateParams) (string, error) {
	return "", errors.New("不应调用远程提交")
}

func (stubRemote) PollOne(apiKey, taskID string) (videoapi.PollResult, error) {
	return videoapi.PollResult{}, errors.New("不应调用远程轮询")
}

func (stubRemote) Download(url string) (string, error) {
	return "", errors.New("不应调用远程下载")
}

func setupTaskRouter(t *testing.T) (*gin.Engine, *store.TaskStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&model.VideoTask{}, &model.HistoryEntry{}, &model.SystemConfig{}))

	cfg := &config.Config{}
	log := logger.New(config.LogConfig{Level: "error", Format: "text", Output: "stdout"})
	settingStore := settings.NewStore(db, cfg, log)
	taskStore := store.NewTaskStore(db)
	svc := service.NewTaskService(taskStore, stubRemote{}, settingStore,
		service.NewHistoryService(db, log), service.DefaultPollPolicy(), log)
	t.Cleanup(svc.Stop)

	h := NewTaskHandler(svc, taskStore, nil, settingStore, log)
	router := gin.New()
	router.GET("/api/tasks/:id", h.Get)
	return router, taskStore
}

func getDetail(t *testing.T, router *gin.Engine, taskID string) (int, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/tasks/"+taskID, nil)
	router.ServeHTTP(w, req)

	var resp struct {
		Code int            `json:"code"`
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp.Data
}

func TestGetReportsMissingArtifact(t *testing.T) {
	router, taskStore := setupTaskRouter(t)

	// 本地制品已被外部删除
	require.NoError(t, taskStore.Create(&model.VideoTask{
		TaskID:        "gone",
		Status:        model.TaskStatusCompleted,
		VideoURL:      "https://cdn.example.com/v.mp4",
		LocalFilePath: filepath.Join(t.TempDir(), "gone_1.mp4"),
	}))

	status, data := getDetail(t, router, "gone")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, data["artifact_missing"])
}

func TestGetArtifactPresent(t *testing.T) {
	router, taskStore := setupTaskRouter(t)

	path := filepath.Join(t.TempDir(), "ok_1.mp4")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0644))

	require.NoError(t, taskStore.Create(&model.VideoTask{
		TaskID:        "ok",
		Status:        model.TaskStatusCompleted,
		VideoURL:      "https://cdn.example.com/v.mp4",
		LocalFilePath: path,
	}))

	status, data := getDetail(t, router, "ok")
	assert.Equal(t, http.StatusOK, status)
	_, present := data["artifact_missing"]
	assert.False(t, present)
}

func TestGetNotFound(t *testing.T) {
	router, _ := setupTaskRouter(t)

	status, _ := getDetail(t, router, "ghost")
	assert.Equal(t, http.StatusNotFound, status)
}
