package service

import (
	"context"
	"convai-builder-go/internal/model"
	"convai-builder-go/internal/repository"
	"convai-builder-go/pkg/log"
	"convai-builder-go/pkg/markdown"
	"convai-builder-go/pkg/tasks"
	"errors"
	"html/template"
	"time"

	"gorm.io/gorm"
)

// MessageView 是渲染与 JSON 响应共用的消息视图。
type MessageView struct {
	ID        uint          `json:"id"`
	Type      string        `json:"type"`
	Content   string        `json:"content"`
	HTML      template.HTML `json:"html,omitempty"`
	Timestamp string        `json:"timestamp"`
	AudioURL  string        `json:"audio_url"`
	CreatedAt time.Time     `json:"-"`
}

// ChatView 是聊天页面所需的数据。
type ChatView struct {
	Bot          *model.Bot
	Conversation *model.Conversation
	Messages     []MessageView
	VoiceName    string
}

// ConversationService 定义了会话相关的业务操作。
type ConversationService interface {
	Open(ctx context.Context, botID, sessionID string) (*ChatView, error)
	Clear(ctx context.Context, botID, sessionID string) error
	ListByBot(botID string) ([]model.ConversationSummary, error)
}

type conversationService struct {
	botRepo          repository.BotRepository
	conversationRepo repository.ConversationRepository
	messageRepo      repository.MessageRepository
	historyCache     repository.HistoryCache
	audioStore       AudioStore
	publisher        TaskPublisher
}

// NewConversationService 创建一个新的 ConversationService。
func NewConversationService(
	botRepo repository.BotRepository,
	conversationRepo repository.ConversationRepository,
	messageRepo repository.MessageRepository,
	historyCache repository.HistoryCache,
	audioStore AudioStore,
	publisher TaskPublisher,
) ConversationService {
	return &conversationService{
		botRepo:          botRepo,
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		historyCache:     historyCache,
		audioStore:       audioStore,
		publisher:        publisher,
	}
}

// Open 惰性创建会话并返回完整的有序历史。
func (s *conversationService) Open(ctx context.Context, botID, sessionID string) (*ChatView, error) {
	bot, err := s.botRepo.FindByID(botID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBotNotFound
	}
	if err != nil {
		return nil, err
	}
	conv, err := s.conversationRepo.GetOrCreate(botID, sessionID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.messageRepo.ListByConversation(conv.ID)
	if err != nil {
		return nil, err
	}
	views := make([]MessageView, 0, len(msgs))
	for i := range msgs {
		views = append(views, newMessageView(ctx, &msgs[i], s.audioStore))
	}
	return &ChatView{Bot: bot, Conversation: conv, Messages: views, VoiceName: VoiceDisplayName(bot.VoiceName)}, nil
}

// Clear 清空会话消息，机器人与会话记录保留。
func (s *conversationService) Clear(ctx context.Context, botID, sessionID string) error {
	conv, err := s.conversationRepo.FindBySession(botID, sessionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrConversationNotFound
	}
	if err != nil {
		return err
	}
	objects, err := s.conversationRepo.ClearMessages(conv.ID)
	if err != nil {
		return err
	}
	if len(objects) > 0 {
		if err := s.audioStore.Remove(ctx, objects); err != nil {
			log.Warnf("清理会话 %d 的语音文件失败: %v", conv.ID, err)
		}
	}
	if err := s.historyCache.Invalidate(ctx, conv.ID); err != nil {
		log.Warnf("清理会话 %d 的历史缓存失败: %v", conv.ID, err)
	}
	if err := s.publisher.Publish(ctx, tasks.NewPurgeConversation(conv.ID)); err != nil {
		log.Warnf("投递索引清理任务失败: %v", err)
	}
	log.Infow("conversation cleared", "conversationId", conv.ID, "botId", botID)
	return nil
}

func (s *conversationService) ListByBot(botID string) ([]model.ConversationSummary, error) {
	if _, err := s.botRepo.FindByID(botID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBotNotFound
		}
		return nil, err
	}
	return s.conversationRepo.ListByBot(botID)
}

// newMessageView 构建消息视图；预签名失败时不返回语音链接。
func newMessageView(ctx context.Context, msg *model.Message, store AudioStore) MessageView {
	view := MessageView{
		ID:        msg.ID,
		Type:      msg.Type,
		Content:   msg.Content,
		Timestamp: msg.Clock(),
		CreatedAt: msg.CreatedAt,
	}
	if msg.Type == model.MessageTypeAssistant {
		view.HTML = markdown.ToHTML(msg.Content)
	}
	if msg.Type == model.MessageTypeAssistant && msg.HasAudio() {
		url, err := store.PresignedURL(ctx, *msg.AudioObject)
		if err != nil {
			log.Warnf("生成语音链接失败: message=%d: %v", msg.ID, err)
		} else {
			view.AudioURL = url
		}
	}
	return view
}
