package handler

import (
	"convai-builder-go/internal/service"
	"convai-builder-go/pkg/log"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// SearchHandler 结构体定义了消息检索的处理器。
type SearchHandler struct {
	searchService service.SearchService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(searchService service.SearchService) *SearchHandler {
	return &SearchHandler{searchService: searchService}
}

// SearchMessages 在所有会话消息中做全文检索。
func (h *SearchHandler) SearchMessages(c *gin.Context) {
	query := c.Query("q")
	botID := c.Query("botId")
	size, err := strconv.Atoi(c.DefaultQuery("size", "20"))
	if err != nil {
		size = 20
	}
	log.Infof("[SearchHandler] 收到检索请求, q: %s, botId: %s", query, botID)

	result, err := h.searchService.SearchMessages(c.Request.Context(), query, botID, size)
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的查询参数", "data": verr.Fields})
			return
		}
		log.Errorf("[SearchHandler] 检索失败, error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "搜索失败", "data": nil})
		return
	}

	log.Infof("[SearchHandler] 检索成功, q: '%s', 命中 %d 条", query, result.Total)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": result})
}
