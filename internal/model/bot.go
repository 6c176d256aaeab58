// Package model 包含了应用的数据模型定义。
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultTemperature 是新建机器人的默认温度。
const DefaultTemperature = 0.7

// Bot 是用户配置的聊天机器人。
type Bot struct {
	ID            string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name          string         `gorm:"type:varchar(200);not null" json:"name"`
	SystemPrompt  string         `gorm:"type:text;not null" json:"systemPrompt"`
	Temperature   float64        `gorm:"not null" json:"temperature"`
	VoiceName     string         `gorm:"type:varchar(64);not null" json:"voiceName"`
	CreatedAt     time.Time      `gorm:"index" json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
	Conversations []Conversation `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

func (Bot) TableName() string {
	return "bots"
}

// BeforeCreate 为新机器人生成 UUID。
func (b *Bot) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// BotSummary 用于列表页展示，附带会话与消息统计。
type BotSummary struct {
	Bot
	ConversationCount int64 `json:"conversationCount"`
	MessageCount      int64 `json:"messageCount"`
}

// BotStats 是单个机器人的聚合统计。
type BotStats struct {
	BotID             string
	ConversationCount int64
	MessageCount      int64
}
