// Package tts 封装 Google Cloud Text-to-Speech REST 接口。
package tts

import (
	"context"
	"convai-builder-go/internal/config"
	"encoding/base64"
	"errors"
	"fmt"

	"google.golang.org/api/option"
	texttospeech "google.golang.org/api/texttospeech/v1"
)

// ErrNotConfigured 表示未配置 API key，语音合成不可用。
var ErrNotConfigured = errors.New("text-to-speech is not configured")

// Client 调用 Google TTS 合成语音。
type Client struct {
	cfg config.TTSConfig
	svc *texttospeech.Service
}

// NewClient 创建 TTS 客户端；未配置 API key 时返回的客户端始终报 ErrNotConfigured。
func NewClient(ctx context.Context, cfg config.TTSConfig, opts ...option.ClientOption) (*Client, error) {
	if cfg.APIKey == "" {
		return &Client{cfg: cfg}, nil
	}
	opts = append([]option.ClientOption{option.WithAPIKey(cfg.APIKey)}, opts...)
	svc, err := texttospeech.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create tts service: %w", err)
	}
	return &Client{cfg: cfg, svc: svc}, nil
}

func (c *Client) buildRequest(text, voice string) *texttospeech.SynthesizeSpeechRequest {
	encoding := c.cfg.AudioEncoding
	if encoding == "" {
		encoding = "MP3"
	}
	language := c.cfg.LanguageCode
	if language == "" {
		language = "en-US"
	}
	return &texttospeech.SynthesizeSpeechRequest{
		Input: &texttospeech.SynthesisInput{Text: text},
		Voice: &texttospeech.VoiceSelectionParams{
			LanguageCode: language,
			Name:         voice,
		},
		AudioConfig: &texttospeech.AudioConfig{AudioEncoding: encoding},
	}
}

// Synthesize 把文本合成为音频字节。
func (c *Client) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if c.svc == nil {
		return nil, ErrNotConfigured
	}
	resp, err := c.svc.Text.Synthesize(c.buildRequest(text, voice)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("tts api call failed: %w", err)
	}
	audio, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("failed to decode tts audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("tts api returned no audio")
	}
	return audio, nil
}
