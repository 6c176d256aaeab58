package llm

import (
	"context"
	"convai-builder-go/internal/config"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/gorilla/websocket"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// geminiClient 通过 Gemini 聊天会话生成回复。
type geminiClient struct {
	cfg    config.LLMConfig
	client *genai.Client
}

func newGeminiClient(ctx context.Context, cfg config.LLMConfig) (*geminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &geminiClient{cfg: cfg, client: client}, nil
}

// session 把 system 消息转为 SystemInstruction，其余消息作为历史，最后一条 user 消息单独返回。
func (c *geminiClient) session(messages []Message, gen *GenerationParams) (*genai.ChatSession, []genai.Part, error) {
	r := resolve(c.cfg, gen)
	model := c.client.GenerativeModel(r.model)
	if r.temperature != nil {
		model.SetTemperature(float32(*r.temperature))
	}
	if r.topP != nil {
		model.SetTopP(float32(*r.topP))
	}
	if r.maxTokens != nil {
		model.SetMaxOutputTokens(int32(*r.maxTokens))
	}

	var system []string
	var history []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			history = append(history, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(m.Content)}})
		default:
			history = append(history, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		}
	}
	if len(history) == 0 || history[len(history)-1].Role != "user" {
		return nil, nil, errors.New("gemini chat requires a trailing user message")
	}
	if len(system) > 0 {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(strings.Join(system, "\n\n"))}}
	}

	last := history[len(history)-1]
	cs := model.StartChat()
	cs.History = history[:len(history)-1]
	return cs, last.Parts, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	if resp == nil {
		return ""
	}
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
	}
	return sb.String()
}

func (c *geminiClient) Complete(ctx context.Context, messages []Message, gen *GenerationParams) (string, error) {
	cs, parts, err := c.session(messages, gen)
	if err != nil {
		return "", err
	}
	resp, err := cs.SendMessage(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("failed to call gemini: %w", err)
	}
	text := responseText(resp)
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

func (c *geminiClient) StreamChatMessages(ctx context.Context, messages []Message, gen *GenerationParams, writer MessageWriter) error {
	cs, parts, err := c.session(messages, gen)
	if err != nil {
		return err
	}
	iter := cs.SendMessageStream(ctx, parts...)
	for {
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read from gemini stream: %w", err)
		}
		text := responseText(resp)
		if text == "" {
			continue
		}
		if err := writer.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
			return fmt.Errorf("failed to write message to websocket: %w", err)
		}
	}
}
