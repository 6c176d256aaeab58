// Package llm provides clients for chat-completion providers.
package llm

import (
	"context"
	"convai-builder-go/internal/config"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyCompletion is returned when the provider answers without any text.
var ErrEmptyCompletion = errors.New("llm returned an empty completion")

// MessageWriter defines an interface for writing WebSocket messages.
// This allows both a standard websocket.Conn and an interceptor to be used.
type MessageWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// Client defines the interface for an LLM client.
type Client interface {
	// Complete 以 role-based 消息调用聊天接口并返回完整回复。
	Complete(ctx context.Context, messages []Message, gen *GenerationParams) (string, error)
	// StreamChatMessages 以 role-based 消息与可选生成参数调用聊天接口，并将流式分块写入 writer。
	StreamChatMessages(ctx context.Context, messages []Message, gen *GenerationParams, writer MessageWriter) error
}

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// 角色常量
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// GenerationParams 控制生成行为，nil 字段使用配置中的默认值。
type GenerationParams struct {
	Model       string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// NewClient creates a new LLM client based on the provider in the config.
func NewClient(ctx context.Context, cfg config.LLMConfig) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "openai", "github":
		return newOpenAIClient(cfg), nil
	case "gemini":
		return newGeminiClient(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}

// resolved 合并调用参数与配置默认值。
type resolved struct {
	model       string
	temperature *float64
	topP        *float64
	maxTokens   *int
}

func resolve(cfg config.LLMConfig, gen *GenerationParams) resolved {
	r := resolved{model: cfg.Model}
	if cfg.Generation.TopP != 0 {
		p := cfg.Generation.TopP
		r.topP = &p
	}
	if cfg.Generation.MaxTokens != 0 {
		m := cfg.Generation.MaxTokens
		r.maxTokens = &m
	}
	if gen == nil {
		return r
	}
	// 传参优先生效
	if gen.Model != "" {
		r.model = gen.Model
	}
	if gen.Temperature != nil {
		r.temperature = gen.Temperature
	}
	if gen.TopP != nil {
		r.topP = gen.TopP
	}
	if gen.MaxTokens != nil {
		r.maxTokens = gen.MaxTokens
	}
	return r
}
