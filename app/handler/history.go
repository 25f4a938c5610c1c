package handler

import (
	"net/http"
	"strconv"

	"video-forge/app/service"

	"github.com/gin-gonic/gin"
)

// HistoryHandler 生成历史处理器
type HistoryHandler struct {
	history *service.HistoryService
}

// NewHistoryHandler 创建历史处理器
func NewHistoryHandler(history *service.HistoryService) *HistoryHandler {
	return &HistoryHandler{history: history}
}

// List 历史列表，按时间倒序
func (h *HistoryHandler) List(c *gin.Context) {
	entries, err := h.history.List()
	if err != nil {
		fail(c, http.StatusInternalServerError, 500, "获取历史记录失败")
		return
	}
	success(c, entries, "")
}

// Delete 删除历史记录及对应的本地文件
func (h *HistoryHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		fail(c, http.StatusBadRequest, 400, "无效的历史记录ID")
		return
	}

	if err := h.history.Delete(uint(id)); err != nil {
		fail(c, http.StatusInternalServerError, 500, "删除历史记录失败: "+err.Error())
		return
	}

	success(c, nil, "历史记录已删除")
}
