package handler

import (
	"convai-builder-go/internal/service"
	"convai-builder-go/pkg/log"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// BotHandler 负责机器人的列表、创建、编辑与删除页面。
type BotHandler struct {
	botService    service.BotService
	secureCookies bool
}

// NewBotHandler 创建一个新的 BotHandler 实例。
func NewBotHandler(botService service.BotService, secureCookies bool) *BotHandler {
	return &BotHandler{botService: botService, secureCookies: secureCookies}
}

// botFormView 回填表单时使用原始字符串。
type botFormView struct {
	Name         string
	SystemPrompt string
	Temperature  string
}

// bindBotForm 解析表单；temperature 不是数字时返回对应字段的错误。
func bindBotForm(c *gin.Context) (service.BotForm, botFormView, map[string]string) {
	view := botFormView{
		Name:         c.PostForm("name"),
		SystemPrompt: c.PostForm("system_prompt"),
		Temperature:  strings.TrimSpace(c.PostForm("temperature")),
	}
	form := service.BotForm{Name: view.Name, SystemPrompt: view.SystemPrompt}
	if view.Temperature == "" {
		return form, view, nil
	}
	t, err := strconv.ParseFloat(view.Temperature, 64)
	if err != nil {
		return form, view, map[string]string{"temperature": "Temperature must be a number."}
	}
	form.Temperature = &t
	return form, view, nil
}

// mergeFieldErrors 合并解析错误与业务校验错误。
func mergeFieldErrors(parseErrs map[string]string, form service.BotForm) map[string]string {
	out := map[string]string{}
	if _, _, _, err := service.ValidateBotForm(form); err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			for k, v := range verr.Fields {
				out[k] = v
			}
		}
	}
	for k, v := range parseErrs {
		out[k] = v
	}
	return out
}

func (h *BotHandler) renderForm(c *gin.Context, status int, title, action string, view botFormView, fieldErrs map[string]string) {
	render(c, h.secureCookies, status, "bot_form.html", gin.H{
		"Title":  title,
		"Action": action,
		"Form":   view,
		"Errors": fieldErrs,
	})
}

// List 展示机器人列表。
func (h *BotHandler) List(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		page = 1
	}
	result, err := h.botService.List(page)
	if err != nil {
		log.Error("List: 获取机器人列表失败", err)
		render(c, h.secureCookies, http.StatusInternalServerError, "bot_list.html", gin.H{"Error": "Could not load bots."})
		return
	}
	render(c, h.secureCookies, http.StatusOK, "bot_list.html", gin.H{"Page": result})
}

// NewForm 展示创建表单。
func (h *BotHandler) NewForm(c *gin.Context) {
	h.renderForm(c, http.StatusOK, "Create Bot", "/create", botFormView{Temperature: "0.7"}, nil)
}

// Create 处理创建表单提交。
func (h *BotHandler) Create(c *gin.Context) {
	form, view, parseErrs := bindBotForm(c)
	if parseErrs != nil {
		h.renderForm(c, http.StatusBadRequest, "Create Bot", "/create", view, mergeFieldErrors(parseErrs, form))
		return
	}
	bot, err := h.botService.Create(c.Request.Context(), form)
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			h.renderForm(c, http.StatusBadRequest, "Create Bot", "/create", view, verr.Fields)
			return
		}
		log.Error("Create: 创建机器人失败", err)
		h.renderForm(c, http.StatusInternalServerError, "Create Bot", "/create", view, map[string]string{"form": "Could not save the bot. Please try again."})
		return
	}
	redirectWithFlash(c, h.secureCookies, "success", fmt.Sprintf("Bot %q created successfully!", bot.Name), "/chat/"+bot.ID)
}

// EditForm 展示编辑表单。
func (h *BotHandler) EditForm(c *gin.Context) {
	bot, err := h.botService.Get(c.Param("id"))
	if err != nil {
		h.botMissing(c, err)
		return
	}
	view := botFormView{Name: bot.Name, SystemPrompt: bot.SystemPrompt, Temperature: strconv.FormatFloat(bot.Temperature, 'f', -1, 64)}
	h.renderForm(c, http.StatusOK, "Edit Bot", "/edit/"+bot.ID, view, nil)
}

// Update 处理编辑表单提交。
func (h *BotHandler) Update(c *gin.Context) {
	id := c.Param("id")
	action := "/edit/" + id
	form, view, parseErrs := bindBotForm(c)
	if parseErrs != nil {
		h.renderForm(c, http.StatusBadRequest, "Edit Bot", action, view, mergeFieldErrors(parseErrs, form))
		return
	}
	bot, err := h.botService.Update(c.Request.Context(), id, form)
	if err != nil {
		var verr *service.ValidationError
		switch {
		case errors.As(err, &verr):
			h.renderForm(c, http.StatusBadRequest, "Edit Bot", action, view, verr.Fields)
		case errors.Is(err, service.ErrBotNotFound):
			h.botMissing(c, err)
		default:
			log.Error("Update: 更新机器人失败", err)
			h.renderForm(c, http.StatusInternalServerError, "Edit Bot", action, view, map[string]string{"form": "Could not save the bot. Please try again."})
		}
		return
	}
	redirectWithFlash(c, h.secureCookies, "success", fmt.Sprintf("Bot %q updated successfully!", bot.Name), "/")
}

// ConfirmDelete 展示删除确认页。
func (h *BotHandler) ConfirmDelete(c *gin.Context) {
	bot, err := h.botService.Get(c.Param("id"))
	if err != nil {
		h.botMissing(c, err)
		return
	}
	render(c, h.secureCookies, http.StatusOK, "bot_confirm_delete.html", gin.H{"Bot": bot})
}

// Delete 删除机器人及其全部会话。
func (h *BotHandler) Delete(c *gin.Context) {
	bot, err := h.botService.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.botMissing(c, err)
		return
	}
	redirectWithFlash(c, h.secureCookies, "success", fmt.Sprintf("Bot %q deleted successfully!", bot.Name), "/")
}

func (h *BotHandler) botMissing(c *gin.Context, err error) {
	if errors.Is(err, service.ErrBotNotFound) {
		redirectWithFlash(c, h.secureCookies, "error", "Bot not found.", "/")
		return
	}
	log.Error("加载机器人失败", err)
	redirectWithFlash(c, h.secureCookies, "error", "Something went wrong. Please try again.", "/")
}
