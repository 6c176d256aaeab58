package model

import "time"

// ChatMessage 是缓存在 Redis 中的历史窗口条目。
type ChatMessage struct {
	Role      string    `json:"role"` // "user" 或 "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation 以会话令牌区分同一机器人下的不同对话。
type Conversation struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	BotID        string    `gorm:"type:varchar(36);index;not null" json:"botId"`
	SessionID    string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"sessionId"`
	StartedAt    time.Time `gorm:"autoCreateTime" json:"startedAt"`
	LastActivity time.Time `json:"lastActivity"`
	Messages     []Message `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// ConversationSummary 是管理端展示的会话概览。
type ConversationSummary struct {
	ID           uint      `json:"id"`
	SessionID    string    `json:"sessionId"`
	StartedAt    LocalTime `json:"startedAt"`
	LastActivity LocalTime `json:"lastActivity"`
	MessageCount int64     `json:"messageCount"`
}
