package settings

import (
	"testing"

	"video-forge/app/config"
	"video-forge/app/logger"
	"video-forge/app/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func testStore(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&model.SystemConfig{}))

	cfg := &config.Config{}
	cfg.API.Key = "cfg-key"
	cfg.Storage.OutputDir = "data/videos"

	log := logger.New(config.LogConfig{Level: "error", Format: "text", Output: "stdout"})
	return NewStore(db, cfg, log), db
}

func TestGetMissingKey(t *testing.T) {
	s, _ := testStore(t)

	_, ok := s.Get("nope")
	assert.False(t, ok)
}

func TestSetOverwrites(t *testing.T) {
	s, _ := testStore(t)

	require.NoError(t, s.Set(model.KeyAPIToken, "first", model.CategoryAPI, "密钥", true))
	require.NoError(t, s.Set(model.KeyAPIToken, "second", model.CategoryAPI, "密钥", true))

	v, ok := s.Get(model.KeyAPIToken)
	require.True(t, ok)
	assert.Equal(t, "second", v)
}

func TestReadThroughFallback(t *testing.T) {
	s, _ := testStore(t)

	// 数据库为空时回退到配置文件
	assert.Equal(t, "cfg-key", s.APIKey())
	assert.Equal(t, config.DefaultSubmitURL, s.SubmitURL())
	assert.Equal(t, "data/videos", s.OutputDir())

	// 数据库中的值优先
	require.NoError(t, s.Set(model.KeyAPIToken, "db-key", model.CategoryAPI, "密钥", true))
	assert.Equal(t, "db-key", s.APIKey())

	// 删除后再次回退
	require.NoError(t, s.Delete(model.KeyAPIToken))
	assert.Equal(t, "cfg-key", s.APIKey())
}

func TestGetFallsBackOnStoreError(t *testing.T) {
	s, db := testStore(t)

	// 表损坏时读取失败不 panic，回退到配置文件的值
	require.NoError(t, db.Migrator().DropTable(&model.SystemConfig{}))

	_, ok := s.Get(model.KeyAPIToken)
	assert.False(t, ok)
	assert.Equal(t, "cfg-key", s.APIKey())
	assert.Equal(t, config.DefaultQueryURL, s.QueryURL())
}
