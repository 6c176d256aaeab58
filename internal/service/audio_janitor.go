package service

import (
	"context"
	"convai-builder-go/internal/repository"
	"convai-builder-go/pkg/log"
	"time"
)

// SweepReport 汇总一次语音清理的结果。
type SweepReport struct {
	Removed  int   `json:"removed"`
	Detached int64 `json:"detached"`
}

// AudioJanitor 删除超过保留期的语音文件。
type AudioJanitor struct {
	audioStore  AudioStore
	messageRepo repository.MessageRepository
	retention   time.Duration
	now         func() time.Time
}

// NewAudioJanitor 创建 AudioJanitor，retentionDays 不大于 0 时按 7 天处理。
func NewAudioJanitor(audioStore AudioStore, messageRepo repository.MessageRepository, retentionDays int) *AudioJanitor {
	if retentionDays <= 0 {
		retentionDays = 7
	}
	return &AudioJanitor{
		audioStore:  audioStore,
		messageRepo: messageRepo,
		retention:   time.Duration(retentionDays) * 24 * time.Hour,
		now:         time.Now,
	}
}

// Sweep 删除过期语音文件并解除消息上的引用。
func (j *AudioJanitor) Sweep(ctx context.Context) (*SweepReport, error) {
	cutoff := j.now().Add(-j.retention)
	expired, err := j.audioStore.ListOlderThan(ctx, AudioPrefix, cutoff)
	if err != nil {
		return nil, err
	}
	report := &SweepReport{}
	if len(expired) == 0 {
		return report, nil
	}
	if err := j.audioStore.Remove(ctx, expired); err != nil {
		log.Warnf("部分过期语音文件删除失败: %v", err)
	}
	report.Removed = len(expired)
	detached, err := j.messageRepo.DetachAudio(expired)
	if err != nil {
		return report, err
	}
	report.Detached = detached
	log.Infow("audio sweep finished", "removed", report.Removed, "detached", report.Detached, "cutoff", cutoff)
	return report, nil
}
