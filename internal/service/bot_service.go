package service

import (
	"context"
	"convai-builder-go/internal/model"
	"convai-builder-go/internal/repository"
	"convai-builder-go/pkg/log"
	"convai-builder-go/pkg/tasks"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"
)

// BotsPerPage 是机器人列表每页的数量。
const BotsPerPage = 12

// BotForm 是创建/编辑表单提交的数据，Temperature 为空时使用默认值。
type BotForm struct {
	Name         string
	SystemPrompt string
	Temperature  *float64
}

// BotPage 是分页后的机器人列表。
type BotPage struct {
	Bots       []model.BotSummary
	Page       int
	TotalPages int
	Total      int64
}

func (p *BotPage) HasPrev() bool { return p.Page > 1 }
func (p *BotPage) HasNext() bool { return p.Page < p.TotalPages }

// BotService 定义了机器人管理的业务操作。
type BotService interface {
	List(page int) (*BotPage, error)
	Get(id string) (*model.Bot, error)
	Create(ctx context.Context, form BotForm) (*model.Bot, error)
	Update(ctx context.Context, id string, form BotForm) (*model.Bot, error)
	Delete(ctx context.Context, id string) (*model.Bot, error)
}

type botService struct {
	botRepo      repository.BotRepository
	historyCache repository.HistoryCache
	voiceService VoiceService
	audioStore   AudioStore
	publisher    TaskPublisher
}

// NewBotService 创建一个新的 BotService 实例。
func NewBotService(botRepo repository.BotRepository, historyCache repository.HistoryCache, voiceService VoiceService, audioStore AudioStore, publisher TaskPublisher) BotService {
	return &botService{
		botRepo:      botRepo,
		historyCache: historyCache,
		voiceService: voiceService,
		audioStore:   audioStore,
		publisher:    publisher,
	}
}

// ValidateBotForm 校验并规范化表单，返回清理后的字段。
func ValidateBotForm(form BotForm) (name, prompt string, temperature float64, err error) {
	verr := &ValidationError{}

	name = strings.TrimSpace(form.Name)
	switch n := utf8.RuneCountInString(name); {
	case n == 0:
		verr.add("name", "Bot name is required.")
	case n < 2:
		verr.add("name", "Bot name must be at least 2 characters long.")
	case n > 200:
		verr.add("name", "Bot name must be at most 200 characters long.")
	}

	prompt = strings.TrimSpace(form.SystemPrompt)
	switch n := utf8.RuneCountInString(prompt); {
	case n == 0:
		verr.add("system_prompt", "System prompt is required.")
	case n < 10:
		verr.add("system_prompt", "System prompt must be at least 10 characters long.")
	}

	temperature = model.DefaultTemperature
	if form.Temperature != nil {
		temperature = *form.Temperature
		if temperature < 0 || temperature > 1 {
			verr.add("temperature", "Temperature must be between 0.0 and 1.0.")
		}
	}
	return name, prompt, temperature, verr.orNil()
}

// List 按创建时间倒序分页，附带会话与消息统计。
func (s *botService) List(page int) (*BotPage, error) {
	if page < 1 {
		page = 1
	}
	bots, total, err := s.botRepo.List((page-1)*BotsPerPage, BotsPerPage)
	if err != nil {
		return nil, err
	}
	totalPages := int((total + BotsPerPage - 1) / BotsPerPage)
	if totalPages == 0 {
		totalPages = 1
	}
	// 超出范围的页码回到最后一页
	if page > totalPages {
		return s.List(totalPages)
	}

	ids := make([]string, 0, len(bots))
	for _, b := range bots {
		ids = append(ids, b.ID)
	}
	stats, err := s.botRepo.Stats(ids)
	if err != nil {
		return nil, err
	}
	summaries := make([]model.BotSummary, 0, len(bots))
	for _, b := range bots {
		st := stats[b.ID]
		summaries = append(summaries, model.BotSummary{Bot: b, ConversationCount: st.ConversationCount, MessageCount: st.MessageCount})
	}
	return &BotPage{Bots: summaries, Page: page, TotalPages: totalPages, Total: total}, nil
}

func (s *botService) Get(id string) (*model.Bot, error) {
	bot, err := s.botRepo.FindByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBotNotFound
	}
	return bot, err
}

// Create 保存机器人，先用规则选定声音，再异步让模型精选。
func (s *botService) Create(ctx context.Context, form BotForm) (*model.Bot, error) {
	name, prompt, temperature, err := ValidateBotForm(form)
	if err != nil {
		return nil, err
	}
	bot := &model.Bot{
		Name:         name,
		SystemPrompt: prompt,
		Temperature:  temperature,
		VoiceName:    s.voiceService.FallbackVoice(name, prompt),
	}
	if err := s.botRepo.Create(bot); err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	log.Infow("bot created", "botId", bot.ID, "name", bot.Name, "voice", bot.VoiceName)
	s.publish(ctx, tasks.NewSelectVoice(bot.ID))
	return bot, nil
}

// Update 修改机器人配置并重新触发声音选择。
func (s *botService) Update(ctx context.Context, id string, form BotForm) (*model.Bot, error) {
	bot, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	name, prompt, temperature, err := ValidateBotForm(form)
	if err != nil {
		return nil, err
	}
	bot.Name = name
	bot.SystemPrompt = prompt
	bot.Temperature = temperature
	bot.VoiceName = s.voiceService.FallbackVoice(name, prompt)
	bot.UpdatedAt = time.Now()
	if err := s.botRepo.Update(bot); err != nil {
		return nil, fmt.Errorf("failed to update bot: %w", err)
	}
	log.Infow("bot updated", "botId", bot.ID, "name", bot.Name)
	s.publish(ctx, tasks.NewSelectVoice(bot.ID))
	return bot, nil
}

// Delete 级联删除机器人、会话和消息，并尽力清理语音文件、缓存与索引。
func (s *botService) Delete(ctx context.Context, id string) (*model.Bot, error) {
	bot, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	deletion, err := s.botRepo.Delete(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete bot: %w", err)
	}

	if len(deletion.AudioObjects) > 0 {
		if err := s.audioStore.Remove(ctx, deletion.AudioObjects); err != nil {
			log.Warnf("删除机器人 %s 的语音文件失败: %v", id, err)
		}
	}
	if err := s.historyCache.Invalidate(ctx, deletion.ConversationIDs...); err != nil {
		log.Warnf("清理机器人 %s 的历史缓存失败: %v", id, err)
	}
	s.publish(ctx, tasks.NewPurgeBot(id))
	log.Infow("bot deleted", "botId", id, "conversations", len(deletion.ConversationIDs), "audioFiles", len(deletion.AudioObjects))
	return bot, nil
}

func (s *botService) publish(ctx context.Context, task tasks.Task) {
	if err := s.publisher.Publish(ctx, task); err != nil {
		log.Warnf("投递后台任务失败: type=%s key=%s: %v", task.Type, task.Key(), err)
	}
}
