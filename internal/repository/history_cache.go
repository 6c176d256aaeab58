package repository

import (
	"context"
	"convai-builder-go/internal/model"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const historyTTL = 7 * 24 * time.Hour

// HistoryCache 在 Redis 中缓存每个会话最近的消息窗口。
type HistoryCache interface {
	Get(ctx context.Context, conversationID uint) ([]model.ChatMessage, bool, error)
	Set(ctx context.Context, conversationID uint, messages []model.ChatMessage, window int) error
	Append(ctx context.Context, conversationID uint, window int, messages ...model.ChatMessage) error
	Invalidate(ctx context.Context, conversationIDs ...uint) error
}

type redisHistoryCache struct {
	redisClient *redis.Client
}

// NewHistoryCache 创建一个新的 HistoryCache 实例。
func NewHistoryCache(redisClient *redis.Client) HistoryCache {
	return &redisHistoryCache{redisClient: redisClient}
}

func historyKey(conversationID uint) string {
	return fmt.Sprintf("conversation:%d:history", conversationID)
}

// Get 读取缓存的历史窗口，未命中时 found 为 false。
func (r *redisHistoryCache) Get(ctx context.Context, conversationID uint) ([]model.ChatMessage, bool, error) {
	jsonData, err := r.redisClient.Get(ctx, historyKey(conversationID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get conversation history: %w", err)
	}
	var messages []model.ChatMessage
	if err := json.Unmarshal([]byte(jsonData), &messages); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal conversation history: %w", err)
	}
	return messages, true, nil
}

// Set 覆盖写入历史窗口，只保留最近 window 条。
func (r *redisHistoryCache) Set(ctx context.Context, conversationID uint, messages []model.ChatMessage, window int) error {
	if window > 0 && len(messages) > window {
		messages = messages[len(messages)-window:]
	}
	jsonData, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation history: %w", err)
	}
	if err := r.redisClient.Set(ctx, historyKey(conversationID), jsonData, historyTTL).Err(); err != nil {
		return fmt.Errorf("failed to set conversation history: %w", err)
	}
	return nil
}

// Append 追加消息；缓存未命中时不写入，下次读取会从数据库重建。
func (r *redisHistoryCache) Append(ctx context.Context, conversationID uint, window int, messages ...model.ChatMessage) error {
	history, found, err := r.Get(ctx, conversationID)
	if err != nil || !found {
		return err
	}
	return r.Set(ctx, conversationID, append(history, messages...), window)
}

func (r *redisHistoryCache) Invalidate(ctx context.Context, conversationIDs ...uint) error {
	if len(conversationIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(conversationIDs))
	for _, id := range conversationIDs {
		keys = append(keys, historyKey(id))
	}
	return r.redisClient.Del(ctx, keys...).Err()
}
