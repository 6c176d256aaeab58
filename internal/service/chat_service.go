package service

import (
	"context"
	"convai-builder-go/internal/model"
	"convai-builder-go/internal/repository"
	"convai-builder-go/pkg/llm"
	"convai-builder-go/pkg/log"
	"convai-builder-go/pkg/tasks"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ChatOptions 控制单轮对话的约束。
type ChatOptions struct {
	HistoryWindow    int
	MaxMessageLength int
	MaxTokens        int
	TurnLockTTL      time.Duration
}

// TurnResult 是一轮对话的结果；补全失败时只有 UserMessage。
type TurnResult struct {
	UserMessage      MessageView  `json:"user_message"`
	AssistantMessage *MessageView `json:"ai_message,omitempty"`
	AudioGenerated   bool         `json:"audio_generated"`
	AudioError       string       `json:"audio_error,omitempty"`
}

// ChatService 定义了聊天操作的接口。
type ChatService interface {
	SendMessage(ctx context.Context, botID, sessionID, text string) (*TurnResult, error)
	StreamMessage(ctx context.Context, botID, sessionID, text string, writer llm.MessageWriter) (*TurnResult, error)
}

type chatService struct {
	botRepo          repository.BotRepository
	conversationRepo repository.ConversationRepository
	messageRepo      repository.MessageRepository
	historyCache     repository.HistoryCache
	turnLock         repository.TurnLock
	llmClient        llm.Client
	speechService    SpeechService
	audioStore       AudioStore
	publisher        TaskPublisher
	opts             ChatOptions
}

// ChatDeps 汇总 ChatService 的依赖。
type ChatDeps struct {
	BotRepo          repository.BotRepository
	ConversationRepo repository.ConversationRepository
	MessageRepo      repository.MessageRepository
	HistoryCache     repository.HistoryCache
	TurnLock         repository.TurnLock
	LLMClient        llm.Client
	SpeechService    SpeechService
	AudioStore       AudioStore
	Publisher        TaskPublisher
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(deps ChatDeps, opts ChatOptions) ChatService {
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = 10
	}
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = 1000
	}
	if opts.TurnLockTTL <= 0 {
		opts.TurnLockTTL = 2 * time.Minute
	}
	return &chatService{
		botRepo:          deps.BotRepo,
		conversationRepo: deps.ConversationRepo,
		messageRepo:      deps.MessageRepo,
		historyCache:     deps.HistoryCache,
		turnLock:         deps.TurnLock,
		llmClient:        deps.LLMClient,
		speechService:    deps.SpeechService,
		audioStore:       deps.AudioStore,
		publisher:        deps.Publisher,
		opts:             opts,
	}
}

type completeFunc func(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams) (string, error)

// SendMessage 处理一轮完整的非流式对话。
func (s *chatService) SendMessage(ctx context.Context, botID, sessionID, text string) (*TurnResult, error) {
	return s.runTurn(ctx, botID, sessionID, text, s.llmClient.Complete)
}

// StreamMessage 与 SendMessage 相同，但把模型输出以 {"chunk":"..."} 形式实时写入 writer。
func (s *chatService) StreamMessage(ctx context.Context, botID, sessionID, text string, writer llm.MessageWriter) (*TurnResult, error) {
	return s.runTurn(ctx, botID, sessionID, text, func(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams) (string, error) {
		answer := &strings.Builder{}
		interceptor := &chunkInterceptor{writer: writer, answer: answer}
		if err := s.llmClient.StreamChatMessages(ctx, messages, gen, interceptor); err != nil {
			return "", err
		}
		if strings.TrimSpace(answer.String()) == "" {
			return "", llm.ErrEmptyCompletion
		}
		return answer.String(), nil
	})
}

// ValidateMessage 去除首尾空白并检查长度。
func ValidateMessage(text string, maxLen int) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > maxLen {
		return "", fmt.Errorf("%w: maximum is %d characters", ErrMessageTooLong, maxLen)
	}
	return text, nil
}

func (s *chatService) runTurn(ctx context.Context, botID, sessionID, text string, complete completeFunc) (*TurnResult, error) {
	text, err := ValidateMessage(text, s.opts.MaxMessageLength)
	if err != nil {
		return nil, err
	}

	bot, err := s.botRepo.FindByID(botID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBotNotFound
	}
	if err != nil {
		return nil, err
	}
	conv, err := s.conversationRepo.FindBySession(botID, sessionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}

	release, err := s.turnLock.Acquire(ctx, conv.ID, s.opts.TurnLockTTL)
	if errors.Is(err, repository.ErrLockHeld) {
		return nil, ErrTurnInProgress
	}
	if err != nil {
		// Redis 不可用时不阻塞对话
		log.Warnf("获取会话锁失败，继续处理: %v", err)
		release = func() {}
	}
	defer release()

	history := s.loadHistory(ctx, conv.ID)

	// 1. 保存用户消息
	userMsg := &model.Message{ConversationID: conv.ID, Type: model.MessageTypeUser, Content: text}
	if err := s.messageRepo.Create(userMsg); err != nil {
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}
	s.publish(ctx, tasks.NewIndexMessage(userMsg.ID))
	result := &TurnResult{UserMessage: newMessageView(ctx, userMsg, s.audioStore)}

	// 2. 调用模型
	reply, err := complete(ctx, BuildCompletionMessages(bot, history, text), s.generationParams(bot))
	if err != nil {
		log.Errorf("获取模型回复失败: bot=%s conversation=%d: %v", bot.ID, conv.ID, err)
		s.afterTurn(ctx, conv.ID, toChatMessage(userMsg))
		return result, fmt.Errorf("%w: %w", ErrCompletionFailed, err)
	}

	// 3. 保存助手消息
	aiMsg := &model.Message{ConversationID: conv.ID, Type: model.MessageTypeAssistant, Content: reply}
	if err := s.messageRepo.Create(aiMsg); err != nil {
		return result, fmt.Errorf("failed to save assistant message: %w", err)
	}
	s.publish(ctx, tasks.NewIndexMessage(aiMsg.ID))

	// 4. 语音合成失败不影响回复
	result.AudioError = s.attachSpeech(ctx, aiMsg, bot.VoiceName)

	s.afterTurn(ctx, conv.ID, toChatMessage(userMsg), toChatMessage(aiMsg))

	view := newMessageView(ctx, aiMsg, s.audioStore)
	result.AssistantMessage = &view
	result.AudioGenerated = view.AudioURL != ""
	return result, nil
}

// attachSpeech 合成并挂载语音，返回面向用户的错误描述（成功时为空）。
func (s *chatService) attachSpeech(ctx context.Context, msg *model.Message, voice string) string {
	speech, err := s.speechService.Synthesize(ctx, msg.ID, msg.Content, voice)
	if err != nil {
		log.Warnf("语音合成失败: message=%d: %v", msg.ID, err)
		reason := "Audio generation failed"
		if errors.Is(err, ErrNoSpeakableText) {
			reason = "No speakable text in reply"
		}
		if meta, mErr := json.Marshal(model.SpeechMeta{Voice: voice, Error: err.Error()}); mErr == nil {
			if err := s.messageRepo.SetMeta(msg.ID, datatypes.JSON(meta)); err != nil {
				log.Warnf("保存语音错误信息失败: %v", err)
			}
		}
		return reason
	}
	meta, _ := json.Marshal(model.SpeechMeta{Voice: speech.Voice, Characters: speech.Characters})
	if err := s.messageRepo.AttachAudio(msg, speech.Object, datatypes.JSON(meta)); err != nil {
		log.Warnf("挂载语音文件失败: message=%d: %v", msg.ID, err)
		return "Audio generation failed"
	}
	return ""
}

// loadHistory 优先读取缓存，未命中时从数据库重建窗口。
func (s *chatService) loadHistory(ctx context.Context, conversationID uint) []model.ChatMessage {
	if cached, found, err := s.historyCache.Get(ctx, conversationID); err == nil && found {
		return cached
	} else if err != nil {
		log.Warnf("读取历史缓存失败: %v", err)
	}
	msgs, err := s.messageRepo.Recent(conversationID, s.opts.HistoryWindow)
	if err != nil {
		log.Errorf("Failed to load conversation history: %v", err)
		return []model.ChatMessage{}
	}
	history := make([]model.ChatMessage, 0, len(msgs))
	for i := range msgs {
		history = append(history, toChatMessage(&msgs[i]))
	}
	if err := s.historyCache.Set(ctx, conversationID, history, s.opts.HistoryWindow); err != nil {
		log.Warnf("写入历史缓存失败: %v", err)
	}
	return history
}

func (s *chatService) afterTurn(ctx context.Context, conversationID uint, messages ...model.ChatMessage) {
	if err := s.conversationRepo.Touch(conversationID, time.Now()); err != nil {
		log.Warnf("更新会话活跃时间失败: %v", err)
	}
	if err := s.historyCache.Append(ctx, conversationID, s.opts.HistoryWindow, messages...); err != nil {
		log.Warnf("更新历史缓存失败: %v", err)
	}
}

func (s *chatService) generationParams(bot *model.Bot) *llm.GenerationParams {
	temp := bot.Temperature
	gen := &llm.GenerationParams{Temperature: &temp}
	if s.opts.MaxTokens > 0 {
		m := s.opts.MaxTokens
		gen.MaxTokens = &m
	}
	return gen
}

func (s *chatService) publish(ctx context.Context, task tasks.Task) {
	if err := s.publisher.Publish(ctx, task); err != nil {
		log.Warnf("投递后台任务失败: type=%s key=%s: %v", task.Type, task.Key(), err)
	}
}

// SystemPrompt 返回发送给模型的系统提示。
func SystemPrompt(bot *model.Bot) string {
	return fmt.Sprintf("Your name is %s. Your system prompt is: %s", bot.Name, bot.SystemPrompt)
}

// BuildCompletionMessages 组装系统提示、历史窗口和本轮用户输入。
func BuildCompletionMessages(bot *model.Bot, history []model.ChatMessage, userInput string) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: SystemPrompt(bot)})
	for _, h := range history {
		role := llm.RoleUser
		if h.Role == model.MessageTypeAssistant {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: h.Content})
	}
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: userInput})
}

func toChatMessage(m *model.Message) model.ChatMessage {
	return model.ChatMessage{Role: m.Type, Content: m.Content, Timestamp: m.CreatedAt}
}

// chunkInterceptor 捕获完整回复，同时把分块包装成 {"chunk":"..."} 下发。
type chunkInterceptor struct {
	writer llm.MessageWriter
	answer *strings.Builder
}

// WriteMessage 满足 llm.MessageWriter 接口。
func (w *chunkInterceptor) WriteMessage(messageType int, data []byte) error {
	w.answer.Write(data)
	b, _ := json.Marshal(map[string]string{"chunk": string(data)})
	return w.writer.WriteMessage(messageType, b)
}
