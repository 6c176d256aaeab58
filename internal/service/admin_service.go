package service

import (
	"context"
	"convai-builder-go/internal/model"
	"convai-builder-go/internal/repository"
	"convai-builder-go/pkg/log"
	"convai-builder-go/pkg/tasks"
	"fmt"
)

// VoiceChange 记录一次声音重选的结果。
type VoiceChange struct {
	BotID    string `json:"botId"`
	BotName  string `json:"botName"`
	OldVoice string `json:"oldVoice"`
	NewVoice string `json:"newVoice"`
	Changed  bool   `json:"changed"`
}

// String 以命令行友好的格式描述变化。
func (c VoiceChange) String() string {
	if !c.Changed {
		return fmt.Sprintf("%q: Already using optimal voice (%s)", c.BotName, VoiceDisplayName(c.NewVoice))
	}
	return fmt.Sprintf("Updated %q: %s → %s", c.BotName, VoiceDisplayName(c.OldVoice), VoiceDisplayName(c.NewVoice))
}

// AdminService 定义了管理端的业务操作。
type AdminService interface {
	QueueVoiceReselection(ctx context.Context) (int, error)
	ReselectVoices(ctx context.Context) ([]VoiceChange, error)
	ListConversations(botID string) ([]model.ConversationSummary, error)
	Usage(ctx context.Context) (*model.UsageReport, error)
}

type adminService struct {
	botRepo             repository.BotRepository
	conversationService ConversationService
	voiceService        VoiceService
	usageService        UsageService
	publisher           TaskPublisher
}

// NewAdminService 创建一个新的 AdminService 实例。
func NewAdminService(botRepo repository.BotRepository, conversationService ConversationService, voiceService VoiceService, usageService UsageService, publisher TaskPublisher) AdminService {
	return &adminService{
		botRepo:             botRepo,
		conversationService: conversationService,
		voiceService:        voiceService,
		usageService:        usageService,
		publisher:           publisher,
	}
}

// QueueVoiceReselection 为每个机器人投递一次声音选择任务。
func (s *adminService) QueueVoiceReselection(ctx context.Context) (int, error) {
	bots, err := s.botRepo.FindAll()
	if err != nil {
		return 0, err
	}
	queued := 0
	for _, b := range bots {
		if err := s.publisher.Publish(ctx, tasks.NewSelectVoice(b.ID)); err != nil {
			log.Warnf("投递声音选择任务失败: bot=%s: %v", b.ID, err)
			continue
		}
		queued++
	}
	return queued, nil
}

// ReselectVoices 同步为所有机器人重新选择声音。
func (s *adminService) ReselectVoices(ctx context.Context) ([]VoiceChange, error) {
	bots, err := s.botRepo.FindAll()
	if err != nil {
		return nil, err
	}
	changes := make([]VoiceChange, 0, len(bots))
	for _, b := range bots {
		voice := s.voiceService.SelectVoice(ctx, b.Name, b.SystemPrompt)
		change := VoiceChange{BotID: b.ID, BotName: b.Name, OldVoice: b.VoiceName, NewVoice: voice, Changed: voice != b.VoiceName}
		if change.Changed {
			if err := s.botRepo.UpdateVoice(b.ID, voice); err != nil {
				return changes, fmt.Errorf("failed to update voice for %s: %w", b.ID, err)
			}
		}
		changes = append(changes, change)
	}
	return changes, nil
}

func (s *adminService) ListConversations(botID string) ([]model.ConversationSummary, error) {
	return s.conversationService.ListByBot(botID)
}

func (s *adminService) Usage(ctx context.Context) (*model.UsageReport, error) {
	return s.usageService.Report(ctx)
}
