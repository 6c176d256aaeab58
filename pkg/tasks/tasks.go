// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import (
	"fmt"
	"time"
)

// Task types
const (
	TypeSelectVoice       = "select_voice"
	TypeIndexMessage      = "index_message"
	TypePurgeBot          = "purge_bot"
	TypePurgeConversation = "purge_conversation"
)

// Task is a background job processed by the Kafka consumer.
type Task struct {
	Type           string    `json:"type"`
	BotID          string    `json:"bot_id,omitempty"`
	ConversationID uint      `json:"conversation_id,omitempty"`
	MessageID      uint      `json:"message_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Key identifies the task for partitioning and retry accounting.
func (t Task) Key() string {
	switch t.Type {
	case TypeIndexMessage:
		return fmt.Sprintf("%s:%d", t.Type, t.MessageID)
	case TypePurgeConversation:
		return fmt.Sprintf("%s:%d:%d", t.Type, t.ConversationID, t.CreatedAt.UnixNano())
	case TypePurgeBot:
		return fmt.Sprintf("%s:%s", t.Type, t.BotID)
	default:
		return fmt.Sprintf("%s:%s:%d", t.Type, t.BotID, t.CreatedAt.UnixNano())
	}
}

func NewSelectVoice(botID string) Task {
	return Task{Type: TypeSelectVoice, BotID: botID, CreatedAt: time.Now()}
}

func NewIndexMessage(messageID uint) Task {
	return Task{Type: TypeIndexMessage, MessageID: messageID, CreatedAt: time.Now()}
}

func NewPurgeBot(botID string) Task {
	return Task{Type: TypePurgeBot, BotID: botID, CreatedAt: time.Now()}
}

func NewPurgeConversation(conversationID uint) Task {
	return Task{Type: TypePurgeConversation, ConversationID: conversationID, CreatedAt: time.Now()}
}
