package repository

import (
	"convai-builder-go/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MessageRepository 定义了消息数据的操作接口。
type MessageRepository interface {
	Create(msg *model.Message) error
	FindByID(id uint) (*model.Message, error)
	ListByConversation(conversationID uint) ([]model.Message, error)
	Recent(conversationID uint, n int) ([]model.Message, error)
	AttachAudio(msg *model.Message, object string, meta datatypes.JSON) error
	SetMeta(id uint, meta datatypes.JSON) error
	DetachAudio(objects []string) (int64, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository 创建一个新的 MessageRepository 实例。
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(msg *model.Message) error {
	if msg.Type == model.MessageTypeUser && msg.HasAudio() {
		return model.ErrAudioOnUserMessage
	}
	return r.db.Create(msg).Error
}

func (r *messageRepository) FindByID(id uint) (*model.Message, error) {
	var msg model.Message
	if err := r.db.First(&msg, id).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListByConversation 按时间和插入顺序返回完整历史。
func (r *messageRepository) ListByConversation(conversationID uint) ([]model.Message, error) {
	var msgs []model.Message
	err := r.db.Where("conversation_id = ?", conversationID).
		Order("created_at ASC").Order("id ASC").
		Find(&msgs).Error
	return msgs, err
}

// Recent 返回最近 n 条消息，旧的在前。
func (r *messageRepository) Recent(conversationID uint, n int) ([]model.Message, error) {
	var msgs []model.Message
	err := r.db.Where("conversation_id = ?", conversationID).
		Order("created_at DESC").Order("id DESC").
		Limit(n).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// AttachAudio 为助手消息挂载语音文件，用户消息不允许挂载。
func (r *messageRepository) AttachAudio(msg *model.Message, object string, meta datatypes.JSON) error {
	if msg.Type != model.MessageTypeAssistant {
		return model.ErrAudioOnUserMessage
	}
	updates := map[string]interface{}{"audio_object": object}
	if meta != nil {
		updates["meta"] = meta
	}
	if err := r.db.Model(&model.Message{}).
		Where("id = ? AND type = ?", msg.ID, model.MessageTypeAssistant).
		Updates(updates).Error; err != nil {
		return err
	}
	msg.AudioObject = &object
	if meta != nil {
		msg.Meta = meta
	}
	return nil
}

func (r *messageRepository) SetMeta(id uint, meta datatypes.JSON) error {
	return r.db.Model(&model.Message{}).Where("id = ?", id).Update("meta", meta).Error
}

// DetachAudio 清除指向已删除语音对象的引用。
func (r *messageRepository) DetachAudio(objects []string) (int64, error) {
	if len(objects) == 0 {
		return 0, nil
	}
	res := r.db.Model(&model.Message{}).Where("audio_object IN ?", objects).Update("audio_object", gorm.Expr("NULL"))
	return res.RowsAffected, res.Error
}
