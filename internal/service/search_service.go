package service

import (
	"context"
	"convai-builder-go/internal/model"
	"strings"
)

// MessageSearcher 在消息索引上执行全文检索。
type MessageSearcher func(ctx context.Context, query, botID string, size int) ([]model.MessageSearchHit, int64, error)

// SearchResult 是一次检索的结果。
type SearchResult struct {
	Total int64                    `json:"total"`
	Hits  []model.MessageSearchHit `json:"hits"`
}

// SearchService 提供管理端的消息检索。
type SearchService interface {
	SearchMessages(ctx context.Context, query, botID string, size int) (*SearchResult, error)
}

type searchService struct {
	search MessageSearcher
}

// NewSearchService 创建一个新的 SearchService 实例。
func NewSearchService(search MessageSearcher) SearchService {
	return &searchService{search: search}
}

func (s *searchService) SearchMessages(ctx context.Context, query, botID string, size int) (*SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &ValidationError{Fields: map[string]string{"q": "Search query is required."}}
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	hits, total, err := s.search(ctx, query, botID, size)
	if err != nil {
		return nil, err
	}
	return &SearchResult{Total: total, Hits: hits}, nil
}
