package repository

import (
	"convai-builder-go/internal/model"
	"time"

	"gorm.io/gorm"
)

// ConversationRepository 定义了会话数据的操作接口。
type ConversationRepository interface {
	GetOrCreate(botID, sessionID string) (*model.Conversation, error)
	FindBySession(botID, sessionID string) (*model.Conversation, error)
	FindByID(id uint) (*model.Conversation, error)
	ListByBot(botID string) ([]model.ConversationSummary, error)
	Touch(id uint, at time.Time) error
	ClearMessages(id uint) ([]string, error)
}

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

// GetOrCreate 首次访问时惰性创建会话。
func (r *conversationRepository) GetOrCreate(botID, sessionID string) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.Where(model.Conversation{BotID: botID, SessionID: sessionID}).
		Attrs(model.Conversation{LastActivity: time.Now()}).
		FirstOrCreate(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *conversationRepository) FindBySession(botID, sessionID string) (*model.Conversation, error) {
	var conv model.Conversation
	if err := r.db.Where("bot_id = ? AND session_id = ?", botID, sessionID).First(&conv).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *conversationRepository) FindByID(id uint) (*model.Conversation, error) {
	var conv model.Conversation
	if err := r.db.First(&conv, id).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListByBot 返回机器人的全部会话及消息数，最近活跃的在前。
func (r *conversationRepository) ListByBot(botID string) ([]model.ConversationSummary, error) {
	type row struct {
		ID           uint
		SessionID    string
		StartedAt    time.Time
		LastActivity time.Time
		MessageCount int64
	}
	var rows []row
	err := r.db.Model(&model.Conversation{}).
		Select("conversations.id, conversations.session_id, conversations.started_at, conversations.last_activity, COUNT(messages.id) AS message_count").
		Joins("LEFT JOIN messages ON messages.conversation_id = conversations.id").
		Where("conversations.bot_id = ?", botID).
		Group("conversations.id, conversations.session_id, conversations.started_at, conversations.last_activity").
		Order("conversations.last_activity DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	summaries := make([]model.ConversationSummary, 0, len(rows))
	for _, r := range rows {
		summaries = append(summaries, model.ConversationSummary{
			ID:           r.ID,
			SessionID:    r.SessionID,
			StartedAt:    model.LocalTime(r.StartedAt),
			LastActivity: model.LocalTime(r.LastActivity),
			MessageCount: r.MessageCount,
		})
	}
	return summaries, nil
}

func (r *conversationRepository) Touch(id uint, at time.Time) error {
	return r.db.Model(&model.Conversation{}).Where("id = ?", id).Update("last_activity", at).Error
}

// ClearMessages 清空会话中的消息，会话本身保留；返回被遗留的语音对象名。
func (r *conversationRepository) ClearMessages(id uint) ([]string, error) {
	var objects []string
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Message{}).
			Where("conversation_id = ? AND audio_object IS NOT NULL", id).
			Pluck("audio_object", &objects).Error; err != nil {
			return err
		}
		return tx.Where("conversation_id = ?", id).Delete(&model.Message{}).Error
	})
	return objects, err
}
