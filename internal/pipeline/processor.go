// Package pipeline 定义了后台任务的处理流程。
package pipeline

import (
	"context"
	"convai-builder-go/internal/model"
	"convai-builder-go/internal/repository"
	"convai-builder-go/internal/service"
	"convai-builder-go/pkg/es"
	"convai-builder-go/pkg/log"
	"convai-builder-go/pkg/tasks"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// MessageIndex 是消息检索索引的写入端。
type MessageIndex interface {
	Index(ctx context.Context, doc model.MessageDocument) error
	DeleteBy(ctx context.Context, field string, value interface{}) error
}

// ESIndex 把 MessageIndex 落到 Elasticsearch 的指定索引上。
type ESIndex struct {
	IndexName string
}

func (i ESIndex) Index(ctx context.Context, doc model.MessageDocument) error {
	return es.IndexMessage(ctx, i.IndexName, doc)
}

func (i ESIndex) DeleteBy(ctx context.Context, field string, value interface{}) error {
	return es.DeleteByField(ctx, i.IndexName, field, value)
}

// Processor 封装了后台任务的所有依赖和逻辑。
type Processor struct {
	voiceService     service.VoiceService
	botRepo          repository.BotRepository
	conversationRepo repository.ConversationRepository
	messageRepo      repository.MessageRepository
	index            MessageIndex
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	voiceService service.VoiceService,
	botRepo repository.BotRepository,
	conversationRepo repository.ConversationRepository,
	messageRepo repository.MessageRepository,
	index MessageIndex,
) *Processor {
	return &Processor{
		voiceService:     voiceService,
		botRepo:          botRepo,
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		index:            index,
	}
}

// Process 按任务类型分发。
func (p *Processor) Process(ctx context.Context, task tasks.Task) error {
	log.Infof("[Processor] 开始处理任务, type=%s key=%s", task.Type, task.Key())
	switch task.Type {
	case tasks.TypeSelectVoice:
		return p.selectVoice(ctx, task.BotID)
	case tasks.TypeIndexMessage:
		return p.indexMessage(ctx, task.MessageID)
	case tasks.TypePurgeBot:
		return p.index.DeleteBy(ctx, "bot_id", task.BotID)
	case tasks.TypePurgeConversation:
		return p.index.DeleteBy(ctx, "conversation_id", task.ConversationID)
	default:
		// 未知类型重试也无意义
		log.Warnf("[Processor] 未知任务类型 %q, 忽略", task.Type)
		return nil
	}
}

func (p *Processor) selectVoice(ctx context.Context, botID string) error {
	bot, err := p.botRepo.FindByID(botID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Warnf("[Processor] 机器人 %s 已不存在, 跳过声音选择", botID)
		return nil
	}
	if err != nil {
		return err
	}
	voice := p.voiceService.SelectVoice(ctx, bot.Name, bot.SystemPrompt)
	if voice == bot.VoiceName {
		return nil
	}
	if err := p.botRepo.UpdateVoice(bot.ID, voice); err != nil {
		return fmt.Errorf("更新机器人声音失败: %w", err)
	}
	log.Infof("[Processor] 机器人 %q 声音更新: %s -> %s", bot.Name, service.VoiceDisplayName(bot.VoiceName), service.VoiceDisplayName(voice))
	return nil
}

// indexMessage 在写入前补齐会话与机器人信息；消息已被删除时直接跳过。
func (p *Processor) indexMessage(ctx context.Context, messageID uint) error {
	msg, err := p.messageRepo.FindByID(messageID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	conv, err := p.conversationRepo.FindByID(msg.ConversationID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	bot, err := p.botRepo.FindByID(conv.BotID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	doc := model.MessageDocument{
		MessageID:      msg.ID,
		ConversationID: conv.ID,
		SessionID:      conv.SessionID,
		BotID:          bot.ID,
		BotName:        bot.Name,
		Role:           msg.Type,
		Content:        msg.Content,
		Timestamp:      msg.CreatedAt,
	}
	if err := p.index.Index(ctx, doc); err != nil {
		return fmt.Errorf("索引消息失败: %w", err)
	}
	return nil
}
