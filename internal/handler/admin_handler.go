package handler

import (
	"context"
	"convai-builder-go/internal/service"
	"convai-builder-go/pkg/log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// AudioSweeper 立即执行一次语音文件清理。
type AudioSweeper interface {
	Sweep(ctx context.Context) (*service.SweepReport, error)
}

// AdminHandler 负责处理所有与管理员相关的 API 请求。
type AdminHandler struct {
	adminService service.AdminService
	janitor      AudioSweeper
}

// NewAdminHandler 创建一个新的 AdminHandler 实例。
func NewAdminHandler(adminService service.AdminService, janitor AudioSweeper) *AdminHandler {
	return &AdminHandler{adminService: adminService, janitor: janitor}
}

// Usage 返回本月 TTS 用量。
func (h *AdminHandler) Usage(c *gin.Context) {
	report, err := h.adminService.Usage(c.Request.Context())
	if err != nil {
		log.Error("Usage: 获取 TTS 用量失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "获取用量失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": report})
}

// ReselectVoices 为所有机器人排队重新选择声音。
func (h *AdminHandler) ReselectVoices(c *gin.Context) {
	queued, err := h.adminService.QueueVoiceReselection(c.Request.Context())
	if err != nil {
		log.Error("ReselectVoices: 投递任务失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "投递任务失败", "data": nil})
		return
	}
	log.Infof("已为 %d 个机器人排队重新选择声音", queued)
	c.JSON(http.StatusAccepted, gin.H{"code": http.StatusAccepted, "message": "queued", "data": gin.H{"queued": queued}})
}

// CleanupAudio 立即清理过期语音。
func (h *AdminHandler) CleanupAudio(c *gin.Context) {
	report, err := h.janitor.Sweep(c.Request.Context())
	if err != nil {
		log.Error("CleanupAudio: 清理语音文件失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "清理失败", "data": report})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": report})
}
