package handler

import (
	"convai-builder-go/internal/service"
	"convai-builder-go/pkg/log"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// AuthHandler 负责处理管理员认证相关的 API 请求。
type AuthHandler struct {
	authService service.AuthService
}

// NewAuthHandler 创建一个新的 AuthHandler 实例。
func NewAuthHandler(authService service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// LoginRequest 定义了登录 API 的请求体结构。
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RefreshTokenRequest 定义了刷新 token API 的请求体结构。
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// Login 处理管理员登录。
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Login: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "用户名和密码不能为空", "data": nil})
		return
	}

	accessToken, refreshToken, err := h.authService.Login(req.Username, req.Password)
	if err != nil {
		if !errors.Is(err, service.ErrInvalidCredentials) {
			log.Error("Login: 签发 token 失败", err)
		}
		log.Warnf("Login: Authentication failed for '%s'", req.Username)
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "用户名或密码错误", "data": nil})
		return
	}

	log.Infof("Admin '%s' logged in", req.Username)
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Login successful",
		"data": gin.H{
			"token":        accessToken,
			"refreshToken": refreshToken,
		},
	})
}

// RefreshToken 处理刷新 token 的请求。
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("RefreshToken: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "refreshToken 不能为空", "data": nil})
		return
	}

	newAccessToken, newRefreshToken, err := h.authService.RefreshToken(req.RefreshToken)
	if err != nil {
		log.Warnf("RefreshToken: Failed to refresh token, error: %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的 refresh token", "data": nil})
		return
	}

	log.Info("Token refreshed successfully")
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Token refreshed successfully",
		"data": gin.H{
			"token":        newAccessToken,
			"refreshToken": newRefreshToken,
		},
	})
}
