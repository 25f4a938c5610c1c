package model

import (
	"time"

	"gorm.io/gorm"
)

// SystemConfig 系统配置模型，保存运行期可修改的设置项
type SystemConfig struct {
	ID          uint           `gorm:"primarykey" json:"id"`
	ConfigKey   string         `gorm:"uniqueIndex;not null;size:100;comment:配置键" json:"config_key"`
	ConfigValue string         `gorm:"type:text;comment:配置值" json:"config_value"`
	ConfigType  string         `gorm:"size:20;default:string;comment:配置类型(string,int,bool等)" json:"config_type"`
	Category    string         `gorm:"size:50;comment:配置分类" json:"category"`
	Description string         `gorm:"size:200;comment:配置描述" json:"description"`
	IsSecret    bool           `gorm:"default:false;comment:是否敏感信息(如API密钥)" json:"is_secret"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

// TableName 指定表名
func (SystemConfig) TableName() string {
	return "system_configs"
}

// ConfigCategory 配置分类常量
const (
	CategorySystem  = "system"  // 系统配置
	CategoryAPI     = "api"     // 远程生成接口配置
	CategoryStorage = "storage" // 存储配置
)

// ConfigType 配置类型常量
const (
	TypeString = "string"
	TypeInt    = "int"
	TypeBool   = "bool"
)

// 设置键常量
const (
	KeyAPIToken  = "api_key"    // 远程接口密钥
	KeySubmitURL = "submit_url" // 提交接口地址
	KeyQueryURL  = "query_url"  // 查询接口地址
	KeySavePath  = "save_path"  // 视频保存目录
)
