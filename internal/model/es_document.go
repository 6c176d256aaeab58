package model

import "time"

// MessageDocument 是写入 Elasticsearch 的消息文档。
type MessageDocument struct {
	MessageID      uint      `json:"message_id"`
	ConversationID uint      `json:"conversation_id"`
	SessionID      string    `json:"session_id"`
	BotID          string    `json:"bot_id"`
	BotName        string    `json:"bot_name"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
}

// MessageSearchHit 是搜索结果中的一条命中。
type MessageSearchHit struct {
	MessageDocument
	Score     float64  `json:"score"`
	Highlight []string `json:"highlight,omitempty"`
}
