package handler

import (
	"context"
	"convai-builder-go/internal/service"
	"convai-builder-go/pkg/log"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const sessionCookieMaxAge = 30 * 24 * 60 * 60

var upgrader = websocket.Upgrader{
	CheckOrigin: sameOrigin,
}

// sameOrigin 只允许本站页面发起 WebSocket 连接，没有 Origin 头的非浏览器请求放行。
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// ChatHandler 负责聊天页面、JSON 发送接口与 WebSocket 流式聊天。
type ChatHandler struct {
	chatService         service.ChatService
	conversationService service.ConversationService
	secureCookies       bool
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService, conversationService service.ConversationService, secureCookies bool) *ChatHandler {
	return &ChatHandler{
		chatService:         chatService,
		conversationService: conversationService,
		secureCookies:       secureCookies,
	}
}

// SendRequest 是 JSON 发送接口的请求体。
type SendRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

func sessionCookieName(botID string) string {
	return "conversation_" + botID
}

// sessionID 优先使用请求中的 session_id，否则读取 cookie。
func (h *ChatHandler) sessionID(c *gin.Context, explicit string) string {
	if explicit != "" {
		return explicit
	}
	sid, _ := c.Cookie(sessionCookieName(c.Param("botID")))
	return sid
}

// chatError 把业务错误映射为状态码与面向用户的提示。
func chatError(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrEmptyMessage):
		return http.StatusBadRequest, "Message cannot be empty"
	case errors.Is(err, service.ErrMessageTooLong):
		return http.StatusBadRequest, "Message is too long"
	case errors.Is(err, service.ErrConversationNotFound):
		return http.StatusBadRequest, "Invalid session"
	case errors.Is(err, service.ErrBotNotFound):
		return http.StatusNotFound, "Bot not found"
	case errors.Is(err, service.ErrTurnInProgress):
		return http.StatusConflict, "A reply is still being generated"
	case errors.Is(err, service.ErrCompletionFailed):
		return http.StatusBadGateway, "Failed to get AI response"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// Page 渲染聊天页面，首次访问时签发会话 cookie。
func (h *ChatHandler) Page(c *gin.Context) {
	botID := c.Param("botID")
	sid, err := c.Cookie(sessionCookieName(botID))
	if err != nil || sid == "" {
		sid = uuid.NewString()
	}
	// 每次访问都续期
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookieName(botID), sid, sessionCookieMaxAge, "/", "", h.secureCookies, true)

	view, err := h.conversationService.Open(c.Request.Context(), botID, sid)
	if err != nil {
		if errors.Is(err, service.ErrBotNotFound) {
			redirectWithFlash(c, h.secureCookies, "error", "Bot not found.", "/")
			return
		}
		log.Error("Page: 打开会话失败", err)
		redirectWithFlash(c, h.secureCookies, "error", "Could not open the conversation.", "/")
		return
	}
	render(c, h.secureCookies, http.StatusOK, "chat.html", gin.H{
		"Chat":      view,
		"SessionID": sid,
	})
}

// Send 是 JSON 发送接口。
func (h *ChatHandler) Send(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Send: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid JSON"})
		return
	}

	res, err := h.chatService.SendMessage(c.Request.Context(), c.Param("botID"), h.sessionID(c, req.SessionID), req.Message)
	if err != nil {
		status, msg := chatError(err)
		if status >= http.StatusInternalServerError {
			log.Errorf("Send: 处理消息失败, bot=%s: %v", c.Param("botID"), err)
		}
		c.JSON(status, gin.H{"success": false, "error": msg})
		return
	}

	var audioErr interface{}
	if res.AudioError != "" {
		audioErr = res.AudioError
	}
	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"user_message":    res.UserMessage,
		"ai_message":      res.AssistantMessage,
		"audio_generated": res.AudioGenerated,
		"audio_error":     audioErr,
	})
}

// Clear 清空当前会话后回到聊天页。
func (h *ChatHandler) Clear(c *gin.Context) {
	botID := c.Param("botID")
	location := "/chat/" + botID
	err := h.conversationService.Clear(c.Request.Context(), botID, h.sessionID(c, c.PostForm("session_id")))
	switch {
	case err == nil:
		redirectWithFlash(c, h.secureCookies, "success", "Conversation cleared.", location)
	case errors.Is(err, service.ErrConversationNotFound):
		redirectWithFlash(c, h.secureCookies, "error", "No active conversation to clear.", location)
	default:
		log.Error("Clear: 清空会话失败", err)
		redirectWithFlash(c, h.secureCookies, "error", "Could not clear the conversation.", location)
	}
}

type wsRequest struct {
	Message string `json:"message"`
}

// Stream 处理 WebSocket 流式聊天：先下发 {"chunk"} 分块，再下发 completion 消息。
func (h *ChatHandler) Stream(c *gin.Context) {
	botID := c.Param("botID")
	sid := h.sessionID(c, c.Query("session_id"))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	log.Infof("WebSocket 连接已建立, bot=%s", botID)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("从 WebSocket 读取消息失败: %v", err)
			}
			return
		}
		var req wsRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			writeJSON(conn, gin.H{"type": "error", "error": "Invalid JSON"})
			continue
		}
		if !h.streamTurn(c.Request.Context(), conn, botID, sid, req.Message) {
			return
		}
	}
}

// streamTurn 处理一轮对话，返回 false 表示连接已不可写。
func (h *ChatHandler) streamTurn(ctx context.Context, conn *websocket.Conn, botID, sid, text string) bool {
	res, err := h.chatService.StreamMessage(ctx, botID, sid, text, conn)
	if err != nil {
		_, msg := chatError(err)
		log.Warnf("流式对话失败, bot=%s: %v", botID, err)
		return writeJSON(conn, gin.H{"type": "error", "error": msg})
	}
	return writeJSON(conn, gin.H{
		"type":            "completion",
		"user_message":    res.UserMessage,
		"ai_message":      res.AssistantMessage,
		"audio_generated": res.AudioGenerated,
		"audio_error":     res.AudioError,
	})
}

func writeJSON(conn *websocket.Conn, payload interface{}) bool {
	b, err := json.Marshal(payload)
	if err != nil {
		return true
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		log.Warnf("写入 WebSocket 消息失败: %v", err)
		return false
	}
	return true
}
