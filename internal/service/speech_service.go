package service

import (
	"context"
	"convai-builder-go/pkg/log"
	"convai-builder-go/pkg/markdown"
	"fmt"
	"unicode/utf8"
)

// AudioPrefix 是语音文件在存储桶中的目录。
const AudioPrefix = "audio/"

// AudioObjectName 返回消息对应的语音文件名。
func AudioObjectName(messageID uint) string {
	return fmt.Sprintf("%sresponse_%d.mp3", AudioPrefix, messageID)
}

// SpeechResult 描述一次成功的语音合成。
type SpeechResult struct {
	Object     string
	Voice      string
	Characters int
}

// SpeechService 负责把助手回复合成为语音并存储。
type SpeechService interface {
	Synthesize(ctx context.Context, messageID uint, text, voice string) (*SpeechResult, error)
	AudioURL(ctx context.Context, objectName string) (string, error)
}

type speechService struct {
	synthesizer  Synthesizer
	audioStore   AudioStore
	usageService UsageService
}

// NewSpeechService 创建一个新的 SpeechService 实例。
func NewSpeechService(synthesizer Synthesizer, audioStore AudioStore, usageService UsageService) SpeechService {
	return &speechService{
		synthesizer:  synthesizer,
		audioStore:   audioStore,
		usageService: usageService,
	}
}

func (s *speechService) Synthesize(ctx context.Context, messageID uint, text, voice string) (*SpeechResult, error) {
	clean := markdown.SpeechText(text)
	if clean == "" {
		return nil, ErrNoSpeakableText
	}
	if voice == "" {
		voice = DefaultVoice
	}

	audio, err := s.synthesizer.Synthesize(ctx, clean, voice)
	if err != nil {
		return nil, err
	}
	chars := utf8.RuneCountInString(clean)
	if err := s.usageService.Record(ctx, chars); err != nil {
		log.Warnf("记录 TTS 用量失败: %v", err)
	}

	object := AudioObjectName(messageID)
	if err := s.audioStore.Put(ctx, object, audio, "audio/mpeg"); err != nil {
		return nil, err
	}
	log.Infow("speech synthesized", "messageId", messageID, "voice", voice, "characters", chars, "bytes", len(audio))
	return &SpeechResult{Object: object, Voice: voice, Characters: chars}, nil
}

func (s *speechService) AudioURL(ctx context.Context, objectName string) (string, error) {
	return s.audioStore.PresignedURL(ctx, objectName)
}
