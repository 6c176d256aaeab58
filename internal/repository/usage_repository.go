package repository

import (
	"convai-builder-go/internal/model"
	"time"

	"gorm.io/gorm"
)

// UsageRepository 定义了 TTS 月度用量的操作接口。
type UsageRepository interface {
	FindOrCreate(month string, limit int) (*model.TTSUsage, error)
	AddCharacters(month string, n, limit int) (*model.TTSUsage, error)
	MarkAlertSent(month string, at time.Time) (bool, error)
}

type usageRepository struct {
	db *gorm.DB
}

// NewUsageRepository 创建一个新的 UsageRepository 实例。
func NewUsageRepository(db *gorm.DB) UsageRepository {
	return &usageRepository{db: db}
}

func (r *usageRepository) FindOrCreate(month string, limit int) (*model.TTSUsage, error) {
	var usage model.TTSUsage
	err := r.db.Where(model.TTSUsage{Month: month}).
		Attrs(model.TTSUsage{CharactersLimit: limit}).
		FirstOrCreate(&usage).Error
	if err != nil {
		return nil, err
	}
	return &usage, nil
}

// AddCharacters 原子累加字符数并返回最新记录。
func (r *usageRepository) AddCharacters(month string, n, limit int) (*model.TTSUsage, error) {
	usage, err := r.FindOrCreate(month, limit)
	if err != nil {
		return nil, err
	}
	err = r.db.Model(&model.TTSUsage{}).Where("id = ?", usage.ID).
		Updates(map[string]interface{}{
			"characters_used": gorm.Expr("characters_used + ?", n),
			"updated_at":      time.Now(),
		}).Error
	if err != nil {
		return nil, err
	}
	if err := r.db.First(usage, usage.ID).Error; err != nil {
		return nil, err
	}
	return usage, nil
}

// MarkAlertSent 仅在本月尚未告警时置位，返回是否由本次调用置位。
func (r *usageRepository) MarkAlertSent(month string, at time.Time) (bool, error) {
	res := r.db.Model(&model.TTSUsage{}).
		Where("month = ? AND alert_sent_at IS NULL", month).
		Update("alert_sent_at", at)
	return res.RowsAffected == 1, res.Error
}
