package handler

import (
	"net/http"

	"video-forge/app/model"
	"video-forge/app/settings"
	"video-forge/app/videoapi"

	"github.com/gin-gonic/gin"
)

// SettingsHandler 系统设置处理器
type SettingsHandler struct {
	settings *settings.Store
	client   *videoapi.Client
}

// NewSettingsHandler 创建设置处理器
func NewSettingsHandler(settingStore *settings.Store, client *videoapi.Client) *SettingsHandler {
	return &SettingsHandler{settings: settingStore, client: client}
}

// settingItem 设置项响应，密钥类值掩码返回
type settingItem struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Category    string `json:"category"`
	Description string `json:"description"`
	IsSecret    bool   `json:"is_secret"`
}

// List 返回全部设置项
func (h *SettingsHandler) List(c *gin.Context) {
	items, err := h.settings.List()
	if err != nil {
		fail(c, http.StatusInternalServerError, 500, "获取设置失败")
		return
	}

	result := make([]settingItem, 0, len(items))
	for _, item := range items {
		value := item.ConfigValue
		if item.IsSecret && value != "" {
			value = maskSecret(value)
		}
		result = append(result, settingItem{
			Key:         item.ConfigKey,
			Value:       value,
			Category:    item.Category,
			Description: item.Description,
			IsSecret:    item.IsSecret,
		})
	}

	success(c, result, "")
}

// UpdateRequest 更新设置请求
type UpdateRequest struct {
	Items []struct {
		Key   string `json:"key" binding:"required"`
		Value string `json:"value"`
	} `json:"items" binding:"required"`
}

// Update 批量更新设置项
func (h *SettingsHandler) Update(c *gin.Context) {
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 400, "请求参数错误: "+err.Error())
		return
	}

	for _, item := range req.Items {
		meta, ok := settingMeta[item.Key]
		if !ok {
			fail(c, http.StatusBadRequest, 400, "不支持的设置项: "+item.Key)
			return
		}
		if err := h.settings.Set(item.Key, item.Value, meta.category, meta.description, meta.secret); err != nil {
			fail(c, http.StatusInternalServerError, 500, "保存设置失败: "+err.Error())
			return
		}
	}

	h.reconfigureClient()
	success(c, nil, "设置已保存")
}

// Reload 重新加载接口地址配置到客户端
func (h *SettingsHandler) Reload(c *gin.Context) {
	h.reconfigureClient()
	success(c, nil, "配置已重新加载")
}

func (h *SettingsHandler) reconfigureClient() {
	h.client.Reconfigure(videoapi.Options{
		SubmitURL: h.settings.SubmitURL(),
		QueryURL:  h.settings.QueryURL(),
	})
}

// maskSecret 只保留密钥首尾各4位
func maskSecret(value string) string {
	if len(value) <= 8 {
		return "********"
	}
	return value[:4] + "****" + value[len(value)-4:]
}

// settingMeta 可编辑设置项的元信息
var settingMeta = map[string]struct {
	category    string
	description string
	secret      bool
}{
	model.KeyAPIToken:  {model.CategoryAPI, "远程视频生成接口密钥", true},
	model.KeySubmitURL: {model.CategoryAPI, "任务提交接口地址", false},
	model.KeyQueryURL:  {model.CategoryAPI, "任务查询接口地址", false},
	model.KeySavePath:  {model.CategoryStorage, "视频保存目录", false},
}
