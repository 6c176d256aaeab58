// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"convai-builder-go/pkg/token"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware 创建一个 Gin 中间件，用于 JWT 认证。
// 只接受 access token，解析出的 claims 存入上下文。
func AuthMiddleware(jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "请求未包含授权头", "data": nil})
			return
		}

		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的授权头格式", "data": nil})
			return
		}
		tokenString := strings.TrimPrefix(authHeader, bearerPrefix)

		claims, err := jwtManager.VerifyToken(tokenString)
		if err != nil || claims.Kind != token.KindAccess {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效或已过期的 token", "data": nil})
			return
		}

		c.Set("claims", claims)
		c.Next()
	}
}
