package model

import (
	"errors"
	"time"

	"gorm.io/datatypes"
)

// 消息类型
const (
	MessageTypeUser      = "user"
	MessageTypeAssistant = "assistant"
)

// ErrAudioOnUserMessage 表示试图为用户消息挂载语音。
var ErrAudioOnUserMessage = errors.New("audio can only be attached to assistant messages")

// Message 是对话中的一条消息，创建后除语音引用外不再修改。
type Message struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	ConversationID uint           `gorm:"index:idx_conversation_created,priority:1;not null" json:"conversationId"`
	Type           string         `gorm:"type:varchar(16);not null" json:"type"`
	Content        string         `gorm:"type:text;not null" json:"content"`
	AudioObject    *string        `gorm:"type:varchar(255);index" json:"-"`
	Meta           datatypes.JSON `json:"meta,omitempty"`
	CreatedAt      time.Time      `gorm:"index:idx_conversation_created,priority:2" json:"createdAt"`
}

func (Message) TableName() string {
	return "messages"
}

// HasAudio 判断消息是否挂载了语音文件。
func (m *Message) HasAudio() bool {
	return m.AudioObject != nil && *m.AudioObject != ""
}

// Clock 返回 HH:MM 格式的时间，用于聊天气泡。
func (m *Message) Clock() string {
	return m.CreatedAt.Format("15:04")
}

// SpeechMeta 记录语音合成的附加信息，存放在 Message.Meta 中。
type SpeechMeta struct {
	Voice      string `json:"voice,omitempty"`
	Characters int    `json:"characters,omitempty"`
	Error      string `json:"error,omitempty"`
}
