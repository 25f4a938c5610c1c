package settings

import (
	"errors"
	"fmt"

	"video-forge/app/config"
	"video-forge/app/logger"
	"video-forge/app/model"

	"gorm.io/gorm"
)

// Store 运行期设置存储，读取顺序：数据库 → 配置文件 → 内置默认值
type Store struct {
	db  *gorm.DB
	cfg *config.Config
	log *logger.Logger
}

// NewStore 创建设置存储
func NewStore(db *gorm.DB, cfg *config.Config, log *logger.Logger) *Store {
	return &Store{db: db, cfg: cfg, log: log}
}

// Get 读取数据库中的设置值
// 记录不存在按"未设置"处理；其他数据库错误记日志后回退，不能悄悄吞掉
func (s *Store) Get(key string) (string, bool) {
	var item model.SystemConfig
	err := s.db.Where("config_key = ?", key).First(&item).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Errorf("读取设置失败，回退到配置文件: key=%s, %v", key, err)
		}
		return "", false
	}
	return item.ConfigValue, true
}

// Set 写入设置值，已存在则覆盖
func (s *Store) Set(key, value, category, description string, secret bool) error {
	var item model.SystemConfig
	err := s.db.Where("config_key = ?", key).First(&item).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("查询设置失败: %w", err)
		}
		item = model.SystemConfig{
			ConfigKey:   key,
			ConfigValue: value,
			ConfigType:  model.TypeString,
			Category:    category,
			Description: description,
			IsSecret:    secret,
		}
		if err := s.db.Create(&item).Error; err != nil {
			return fmt.Errorf("创建设置失败: %w", err)
		}
		return nil
	}

	item.ConfigValue = value
	if err := s.db.Save(&item).Error; err != nil {
		return fmt.Errorf("更新设置失败: %w", err)
	}
	return nil
}

// Delete 删除设置值，回落到配置文件或默认值
func (s *Store) Delete(key string) error {
	return s.db.Where("config_key = ?", key).Delete(&model.SystemConfig{}).Error
}

// List 返回全部设置项
func (s *Store) List() ([]model.SystemConfig, error) {
	var items []model.SystemConfig
	if err := s.db.Order("category ASC, config_key ASC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("查询设置列表失败: %w", err)
	}
	return items, nil
}

// APIKey 当前生效的远程接口密钥
func (s *Store) APIKey() string {
	if v, ok := s.Get(model.KeyAPIToken); ok && v != "" {
		return v
	}
	return s.cfg.API.Key
}

// SubmitURL 当前生效的提交接口地址
func (s *Store) SubmitURL() string {
	if v, ok := s.Get(model.KeySubmitURL); ok && v != "" {
		return v
	}
	if s.cfg.API.SubmitURL != "" {
		return s.cfg.API.SubmitURL
	}
	return config.DefaultSubmitURL
}

// QueryURL 当前生效的查询接口地址
func (s *Store) QueryURL() string {
	if v, ok := s.Get(model.KeyQueryURL); ok && v != "" {
		return v
	}
	if s.cfg.API.QueryURL != "" {
		return s.cfg.API.QueryURL
	}
	return config.DefaultQueryURL
}

// OutputDir 当前生效的视频保存目录
func (s *Store) OutputDir() string {
	if v, ok := s.Get(model.KeySavePath); ok && v != "" {
		return v
	}
	return s.cfg.Storage.OutputDir
}
