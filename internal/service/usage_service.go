package service

import (
	"context"
	"convai-builder-go/internal/model"
	"convai-builder-go/internal/repository"
	"convai-builder-go/pkg/log"
	"fmt"
	"time"
)

// UsageService 跟踪 TTS 的月度字符用量。
type UsageService interface {
	Record(ctx context.Context, characters int) error
	Report(ctx context.Context) (*model.UsageReport, error)
}

type usageService struct {
	repo   repository.UsageRepository
	mailer Mailer
	limit  int
	now    func() time.Time
}

// NewUsageService 创建一个新的 UsageService 实例。
func NewUsageService(repo repository.UsageRepository, mailer Mailer, monthlyLimit int) UsageService {
	return &usageService{repo: repo, mailer: mailer, limit: monthlyLimit, now: time.Now}
}

func (s *usageService) month() string {
	return s.now().Format("2006-01")
}

// Record 累加用量，本月首次达到告警线时发送一次邮件。
func (s *usageService) Record(ctx context.Context, characters int) error {
	month := s.month()
	usage, err := s.repo.AddCharacters(month, characters, s.limit)
	if err != nil {
		return err
	}
	if usage.OverLimit() {
		log.Warnf("TTS 用量已超出上限: %d/%d", usage.CharactersUsed, usage.CharactersLimit)
	}
	if !usage.NearLimit() || usage.AlertSentAt != nil {
		return nil
	}

	marked, err := s.repo.MarkAlertSent(month, s.now())
	if err != nil || !marked {
		return err
	}
	subject := fmt.Sprintf("TTS usage at %.1f%% for %s", usage.Percentage(), month)
	body := fmt.Sprintf("Text-to-speech usage for %s has reached %d of %d characters (%.1f%%). %d characters remain.",
		month, usage.CharactersUsed, usage.CharactersLimit, usage.Percentage(), usage.Remaining())
	if err := s.mailer.Send(subject, body); err != nil {
		log.Warnf("发送 TTS 用量告警邮件失败: %v", err)
	}
	return nil
}

func (s *usageService) Report(ctx context.Context) (*model.UsageReport, error) {
	usage, err := s.repo.FindOrCreate(s.month(), s.limit)
	if err != nil {
		return nil, err
	}
	report := usage.Report()
	return &report, nil
}
