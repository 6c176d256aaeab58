// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"convai-builder-go/internal/service"
	"html/template"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
)

// TemplateFuncs 是页面模板可用的辅助函数。
func TemplateFuncs() template.FuncMap {
	return template.FuncMap{
		"add":       func(a, b int) int { return a + b },
		"sub":       func(a, b int) int { return a - b },
		"truncate":  truncate,
		"voiceName": service.VoiceDisplayName,
	}
}

// truncate 按字符截断并补省略号。
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n])) + "…"
}

const flashCookie = "flash"

// Flash 是一次性的页面提示，通过短期 cookie 跨重定向传递。
type Flash struct {
	Kind    string // success 或 error
	Message string
}

func setFlash(c *gin.Context, secure bool, kind, message string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(flashCookie, kind+"|"+message, 60, "/", "", secure, true)
}

// popFlash 读取并清除提示。
func popFlash(c *gin.Context, secure bool) *Flash {
	raw, err := c.Cookie(flashCookie)
	if err != nil || raw == "" {
		return nil
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(flashCookie, "", -1, "/", "", secure, true)
	kind, message, ok := strings.Cut(raw, "|")
	if !ok {
		return &Flash{Kind: "success", Message: raw}
	}
	return &Flash{Kind: kind, Message: message}
}

func render(c *gin.Context, secure bool, status int, name string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	data["Flash"] = popFlash(c, secure)
	c.HTML(status, name, data)
}

func redirectWithFlash(c *gin.Context, secure bool, kind, message, location string) {
	setFlash(c, secure, kind, message)
	c.Redirect(http.StatusSeeOther, location)
}
