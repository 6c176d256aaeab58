package handler

import (
	"convai-builder-go/internal/service"
	"convai-builder-go/pkg/log"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ConversationHandler 处理管理端的会话查询。
type ConversationHandler struct {
	service service.ConversationService
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(service service.ConversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

// ListByBot 返回机器人的全部会话及消息数。
func (h *ConversationHandler) ListByBot(c *gin.Context) {
	conversations, err := h.service.ListByBot(c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrBotNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "Bot not found", "data": nil})
			return
		}
		log.Error("ListByBot: 获取会话列表失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "Failed to retrieve conversations",
			"data":    nil,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    conversations,
	})
}
