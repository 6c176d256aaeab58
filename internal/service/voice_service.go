package service

import (
	"context"
	"convai-builder-go/pkg/llm"
	"convai-builder-go/pkg/log"
	"fmt"
	"strings"
	"unicode"
)

// VoiceProfile 描述一个可选的 TTS 声音。
type VoiceProfile struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Gender      string `json:"gender"`
	Tone        string `json:"tone"`
	Description string `json:"description"`
}

const (
	VoiceAchernar = "en-US-Chirp3-HD-Achernar"
	VoiceLeda     = "en-US-Chirp3-HD-Leda"
	VoiceOrus     = "en-US-Chirp3-HD-Orus"
	VoiceCharon   = "en-US-Chirp3-HD-Charon"

	DefaultVoice = VoiceAchernar
)

// VoiceProfiles 按提示词中的顺序列出全部声音。
var VoiceProfiles = []VoiceProfile{
	{VoiceAchernar, "Achernar", "female", "friendly", "Customer service, assistants, helpful bots"},
	{VoiceLeda, "Leda", "female", "elegant", "Business, professional, educational bots"},
	{VoiceOrus, "Orus", "male", "warm", "Coaching, support, friendly assistant bots"},
	{VoiceCharon, "Charon", "male", "authoritative", "Expert advisors, professional consultants, authoritative bots"},
}

var (
	maleIndicators    = []string{"john", "mike", "alex", "david", "james", "coach", "mr", "sir"}
	femaleIndicators  = []string{"sarah", "emma", "lisa", "maya", "anna", "assistant", "ms", "mrs"}
	professionalTerms = []string{"professional", "business", "manager", "expert", "advisor"}
)

const voiceSystemPrompt = `You are an expert voice selector for conversational AI bots. Choose the BEST voice from these 4 premium options:

1. en-US-Chirp3-HD-Achernar (female, friendly, warm, conversational)
   - Best for: Customer service, assistants, helpful bots

2. en-US-Chirp3-HD-Leda (female, elegant, sophisticated, professional)
   - Best for: Business, professional, educational bots

3. en-US-Chirp3-HD-Orus (male, warm, friendly, supportive)
   - Best for: Coaching, support, friendly assistant bots

4. en-US-Chirp3-HD-Charon (male, authoritative, professional, confident)
   - Best for: Expert advisors, professional consultants, authoritative bots

Analyze BOTH the bot name AND the system prompt to determine gender preference, personality type, use case and tone.

Return ONLY the voice ID. Example: en-US-Chirp3-HD-Achernar`

// VoiceService 为机器人挑选合适的 TTS 声音。
type VoiceService interface {
	SelectVoice(ctx context.Context, name, systemPrompt string) string
	FallbackVoice(name, systemPrompt string) string
}

type voiceService struct {
	llmClient llm.Client
	model     string
}

// NewVoiceService 创建 VoiceService；llmClient 为 nil 时只使用规则选择。
func NewVoiceService(llmClient llm.Client, model string) VoiceService {
	return &voiceService{llmClient: llmClient, model: model}
}

// SelectVoice 让模型根据名字和提示词选择声音，失败时回退到规则选择。
func (s *voiceService) SelectVoice(ctx context.Context, name, systemPrompt string) string {
	if s.llmClient == nil {
		return s.FallbackVoice(name, systemPrompt)
	}
	temp, topP, maxTokens := 0.1, 0.9, 150
	reply, err := s.llmClient.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: voiceSystemPrompt},
		{Role: llm.RoleUser, Content: fmt.Sprintf("Bot Name: %q\n\nSystem Prompt: %q\n\nBased on the bot's name and role/personality described in the system prompt, which voice fits best?", name, systemPrompt)},
	}, &llm.GenerationParams{Model: s.model, Temperature: &temp, TopP: &topP, MaxTokens: &maxTokens})
	if err != nil {
		log.Warnf("AI voice selection failed for %q, using fallback: %v", name, err)
		return s.FallbackVoice(name, systemPrompt)
	}
	voice, ok := ExtractVoice(reply)
	if !ok {
		log.Warnf("AI returned invalid voice %q for %q, using fallback", reply, name)
		return s.FallbackVoice(name, systemPrompt)
	}
	log.Infof("AI selected voice %s for %q", VoiceDisplayName(voice), name)
	return voice
}

// FallbackVoice 基于名字与提示词关键字的规则选择。
func (s *voiceService) FallbackVoice(name, systemPrompt string) string {
	words := nameWords(name)
	professional := containsAny(strings.ToLower(systemPrompt), professionalTerms)

	switch {
	case matchesIndicator(words, maleIndicators):
		if professional {
			return VoiceCharon
		}
		return VoiceOrus
	case matchesIndicator(words, femaleIndicators):
		if professional {
			return VoiceLeda
		}
		return VoiceAchernar
	case professional:
		return VoiceLeda
	default:
		return VoiceAchernar
	}
}

// ExtractVoice 从模型回复中提取声音 ID：先匹配完整 ID，再匹配名字。
func ExtractVoice(reply string) (string, bool) {
	cleaned := strings.NewReplacer(`"`, "", "'", "", "`", "").Replace(strings.TrimSpace(reply))
	for _, p := range VoiceProfiles {
		if strings.Contains(cleaned, p.ID) {
			return p.ID, true
		}
	}
	lower := strings.ToLower(cleaned)
	for _, p := range VoiceProfiles {
		if strings.Contains(lower, strings.ToLower(p.Name)) {
			return p.ID, true
		}
	}
	return "", false
}

// VoiceDisplayName 返回声音的展示名，未知 ID 返回 Unknown。
func VoiceDisplayName(id string) string {
	for _, p := range VoiceProfiles {
		if p.ID == id {
			return p.Name
		}
	}
	return "Unknown"
}

func nameWords(name string) []string {
	return strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
}

// 短称谓（mr、ms 等）需整词匹配，名字允许前缀匹配（johnny 匹配 john）。
func matchesIndicator(words, indicators []string) bool {
	for _, w := range words {
		for _, ind := range indicators {
			if w == ind || (len(ind) > 3 && strings.HasPrefix(w, ind)) {
				return true
			}
		}
	}
	return false
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
