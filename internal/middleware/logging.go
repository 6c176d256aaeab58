package middleware

import (
	"bytes"
	"convai-builder-go/pkg/log"
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// bodyLogWriter 用于捕获响应体
type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

// Write 实现了 io.Writer 接口，将响应写入 gin.ResponseWriter 和一个内部的 buffer
func (w bodyLogWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// isAPIRequest 只有 JSON 接口记录请求和响应体，页面、表单与认证接口的内容不落日志。
func isAPIRequest(c *gin.Context) bool {
	path := c.Request.URL.Path
	if strings.HasPrefix(path, "/api/v1/auth/") {
		return false
	}
	return strings.HasPrefix(path, "/api/") || strings.HasSuffix(path, "/send")
}

// RequestLogger 是一个 Gin 中间件，用于记录请求日志。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		path := c.Request.URL.Path

		// WebSocket 升级需要原始的 ResponseWriter
		if c.IsWebsocket() {
			c.Next()
			log.Infow("WebSocket Session Log", "path", path, "clientIP", c.ClientIP(), "duration", time.Since(startTime).String())
			return
		}

		api := isAPIRequest(c)
		var requestBody []byte
		var blw *bodyLogWriter
		if api {
			if c.Request.Body != nil {
				requestBody, _ = io.ReadAll(c.Request.Body)
			}
			// 将读取的请求体重新设置回 c.Request.Body，以便后续处理函数可以正常读取
			c.Request.Body = io.NopCloser(bytes.NewBuffer(requestBody))
			blw = &bodyLogWriter{body: bytes.NewBufferString(""), ResponseWriter: c.Writer}
			c.Writer = blw
		}

		c.Next()

		fields := []interface{}{
			"statusCode", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", path,
		}
		if api {
			fields = append(fields, "requestBody", string(requestBody), "responseBody", blw.body.String())
		}
		log.Infow("HTTP Request Log", fields...)
	}
}
