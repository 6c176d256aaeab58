package llm

import (
	"context"
	"convai-builder-go/internal/config"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/gorilla/websocket"
	openai "github.com/sashabaranov/go-openai"
)

// openAIClient 访问任意 OpenAI 兼容接口（OpenAI、GitHub Models 等）。
type openAIClient struct {
	cfg    config.LLMConfig
	client *openai.Client
}

func newOpenAIClient(cfg config.LLMConfig) *openAIClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &openAIClient{
		cfg:    cfg,
		client: openai.NewClientWithConfig(clientCfg),
	}
}

func (c *openAIClient) buildRequest(messages []Message, gen *GenerationParams) openai.ChatCompletionRequest {
	r := resolve(c.cfg, gen)
	req := openai.ChatCompletionRequest{
		Model:    r.model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	if r.temperature != nil {
		t := float32(*r.temperature)
		// go-openai 会省略值为 0 的 temperature
		if t == 0 {
			t = math.SmallestNonzeroFloat32
		}
		req.Temperature = t
	}
	if r.topP != nil {
		req.TopP = float32(*r.topP)
	}
	if r.maxTokens != nil {
		req.MaxTokens = *r.maxTokens
	}
	return req
}

func (c *openAIClient) Complete(ctx context.Context, messages []Message, gen *GenerationParams) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.buildRequest(messages, gen))
	if err != nil {
		return "", fmt.Errorf("failed to call chat api: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *openAIClient) StreamChatMessages(ctx context.Context, messages []Message, gen *GenerationParams, writer MessageWriter) error {
	req := c.buildRequest(messages, gen)
	req.Stream = true

	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to open chat stream: %w", err)
	}
	defer stream.Close()

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read from stream: %w", err)
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		if err := writer.WriteMessage(websocket.TextMessage, []byte(chunk.Choices[0].Delta.Content)); err != nil {
			return fmt.Errorf("failed to write message to websocket: %w", err)
		}
	}
}
