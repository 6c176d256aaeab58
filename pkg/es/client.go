// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"convai-builder-go/internal/config"
	"convai-builder-go/internal/model"
	"convai-builder-go/pkg/log"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

var ESClient *elasticsearch.Client

const messageMapping = `{
	"mappings": {
		"properties": {
			"message_id": { "type": "long" },
			"conversation_id": { "type": "long" },
			"session_id": { "type": "keyword" },
			"bot_id": { "type": "keyword" },
			"bot_name": {
				"type": "text",
				"fields": { "raw": { "type": "keyword" } }
			},
			"role": { "type": "keyword" },
			"content": { "type": "text", "analyzer": "english" },
			"timestamp": { "type": "date" }
		}
	}
}`

// InitES 初始化 Elasticsearch 客户端
func InitES(esCfg config.ElasticsearchConfig) error {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return err
	}
	ESClient = client
	return createIndexIfNotExists(esCfg.IndexName)
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func createIndexIfNotExists(indexName string) error {
	res, err := ESClient.Indices.Exists([]string{indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	res, err = ESClient.Indices.Create(
		indexName,
		ESClient.Indices.Create.WithBody(strings.NewReader(messageMapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", indexName, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", indexName)
	return nil
}

// IndexMessage 将单条消息写入索引，文档 ID 即消息 ID。
func IndexMessage(ctx context.Context, indexName string, doc model.MessageDocument) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      indexName,
		DocumentID: strconv.FormatUint(uint64(doc.MessageID), 10),
		Body:       bytes.NewReader(docBytes),
	}
	res, err := req.Do(ctx, ESClient)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("索引消息到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to index message")
	}
	return nil
}

// BuildSearchQuery 构造全文检索请求体，botID 为空时不过滤。
func BuildSearchQuery(query, botID string, size int) map[string]interface{} {
	filters := []interface{}{}
	if botID != "" {
		filters = append(filters, map[string]interface{}{"term": map[string]interface{}{"bot_id": botID}})
	}
	return map[string]interface{}{
		"size": size,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": []interface{}{
					map[string]interface{}{"match": map[string]interface{}{"content": query}},
				},
				"filter": filters,
			},
		},
		"highlight": map[string]interface{}{
			"fields": map[string]interface{}{"content": map[string]interface{}{}},
		},
		"sort": []interface{}{
			"_score",
			map[string]interface{}{"timestamp": map[string]interface{}{"order": "desc"}},
		},
	}
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			Score     float64               `json:"_score"`
			Source    model.MessageDocument `json:"_source"`
			Highlight map[string][]string   `json:"highlight"`
		} `json:"hits"`
	} `json:"hits"`
}

// SearchMessages 在消息索引中做全文检索。
func SearchMessages(ctx context.Context, indexName, query, botID string, size int) ([]model.MessageSearchHit, int64, error) {
	body, err := json.Marshal(BuildSearchQuery(query, botID, size))
	if err != nil {
		return nil, 0, err
	}
	res, err := ESClient.Search(
		ESClient.Search.WithContext(ctx),
		ESClient.Search.WithIndex(indexName),
		ESClient.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, 0, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, 0, fmt.Errorf("search failed: %s", res.String())
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, 0, fmt.Errorf("failed to decode search response: %w", err)
	}
	hits := make([]model.MessageSearchHit, 0, len(sr.Hits.Hits))
	for _, h := range sr.Hits.Hits {
		hits = append(hits, model.MessageSearchHit{
			MessageDocument: h.Source,
			Score:           h.Score,
			Highlight:       h.Highlight["content"],
		})
	}
	return hits, sr.Hits.Total.Value, nil
}

// DeleteByField 删除字段等于指定值的所有文档。
func DeleteByField(ctx context.Context, indexName, field string, value interface{}) error {
	body, err := json.Marshal(map[string]interface{}{
		"query": map[string]interface{}{"term": map[string]interface{}{field: value}},
	})
	if err != nil {
		return err
	}
	refresh := true
	req := esapi.DeleteByQueryRequest{
		Index:     []string{indexName},
		Body:      bytes.NewReader(body),
		Refresh:   &refresh,
		Conflicts: "proceed",
	}
	res, err := req.Do(ctx, ESClient)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("delete by query failed: %s", res.String())
	}
	return nil
}
