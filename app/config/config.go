package config

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

// 内置默认接口地址，可被配置文件或系统设置覆盖
const (
	DefaultSubmitURL = "https://api.ppinfra.com/v3/async/seedance-v1-pro-t2v"
	DefaultQueryURL  = "https://api.ppinfra.com/v3/async/task-result"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	JWT     JWTConfig     `mapstructure:"jwt"`
	API     APIConfig     `mapstructure:"api"`
	Poll    PollConfig    `mapstructure:"poll"`
	Storage StorageConfig `mapstructure:"storage"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`      // json 或 text
	Output     string `mapstructure:"output"`      // stdout 或 file
	MaxSize    int    `mapstructure:"max_size"`    // 兆字节
	MaxBackups int    `mapstructure:"max_backups"` // 备份数量
	MaxAge     int    `mapstructure:"max_age"`     // 天数
	Compress   bool   `mapstructure:"compress"`    // 是否压缩旧文件
}

type JWTConfig struct {
	Secret     string `mapstructure:"secret"`      // JWT 密钥
	ExpireTime int    `mapstructure:"expire_time"` // 过期时间（小时）
	Issuer     string `mapstructure:"issuer"`      // 签发者
}

// APIConfig 远程视频生成接口配置
type APIConfig struct {
	Key       string `mapstructure:"key"`        // 默认 API 密钥
	SubmitURL string `mapstructure:"submit_url"` // 提交接口地址
	QueryURL  string `mapstructure:"query_url"`  // 查询接口地址
}

// PollConfig 轮询策略配置
type PollConfig struct {
	InitialIntervalMs int `mapstructure:"initial_interval_ms"` // 初始轮询间隔
	MaxIntervalMs     int `mapstructure:"max_interval_ms"`     // 间隔上限
	MaxWaitMs         int `mapstructure:"max_wait_ms"`         // 单任务最长等待
}

// StorageConfig 制品存储配置
type StorageConfig struct {
	OutputDir  string `mapstructure:"output_dir"`   // 视频保存目录
	TempMaxAge int    `mapstructure:"temp_max_age"` // 临时文件保留小时数
}

func Load() *Config {
	setDefaults()

	// 读取配置
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("未找到配置文件，使用默认配置")
		} else {
			log.Fatalf("读取配置文件出错: %v", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		log.Fatalf("无法解码配置: %v", err)
	}

	// 验证配置
	if err := validateConfig(&config); err != nil {
		log.Fatalf("配置验证失败: %v", err)
	}

	return &config
}

// InitialInterval 初始轮询间隔
func (p PollConfig) InitialInterval() time.Duration {
	return time.Duration(p.InitialIntervalMs) * time.Millisecond
}

// MaxInterval 轮询间隔上限
func (p PollConfig) MaxInterval() time.Duration {
	return time.Duration(p.MaxIntervalMs) * time.Millisecond
}

// MaxWait 单任务最长等待时间
func (p PollConfig) MaxWait() time.Duration {
	return time.Duration(p.MaxWaitMs) * time.Millisecond
}

// setDefaults 设置默认配置
func setDefaults() {
	viper.SetDefault("server.port", "5000")

	// 日志默认配置
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.max_size", 100)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.max_age", 28)
	viper.SetDefault("log.compress", true)

	// JWT默认配置
	viper.SetDefault("jwt.secret", "your-secret-key-change-in-production")
	viper.SetDefault("jwt.expire_time", 24) // 24小时
	viper.SetDefault("jwt.issuer", "video-forge")

	// 远程接口默认配置
	viper.SetDefault("api.submit_url", DefaultSubmitURL)
	viper.SetDefault("api.query_url", DefaultQueryURL)

	// 轮询默认配置：前三次 3 秒，之后按 1.6 倍递增，上限 30 秒，总等待 300 秒
	viper.SetDefault("poll.initial_interval_ms", 3000)
	viper.SetDefault("poll.max_interval_ms", 30000)
	viper.SetDefault("poll.max_wait_ms", 300000)

	// 存储默认配置
	viper.SetDefault("storage.output_dir", "data/videos")
	viper.SetDefault("storage.temp_max_age", 24)
}

// validateConfig 验证配置的有效性
func validateConfig(config *Config) error {
	if config.Server.Port == "" {
		return fmt.Errorf("服务器端口未设置")
	}
	if config.JWT.Secret == "" {
		return fmt.Errorf("JWT密钥未设置")
	}
	if config.Poll.InitialIntervalMs <= 0 || config.Poll.MaxIntervalMs < config.Poll.InitialIntervalMs {
		return fmt.Errorf("轮询间隔配置不合法")
	}
	if config.Poll.MaxWaitMs < config.Poll.MaxIntervalMs {
		return fmt.Errorf("轮询最长等待必须大于间隔上限")
	}
	return nil
}
