// Package repository 提供了数据访问层的实现。
package repository

import (
	"convai-builder-go/internal/model"

	"gorm.io/gorm"
)

// BotDeletion 记录删除机器人时一并清理掉的关联数据。
type BotDeletion struct {
	ConversationIDs []uint
	AudioObjects    []string
}

// BotRepository 定义了机器人数据的操作接口。
type BotRepository interface {
	Create(bot *model.Bot) error
	Update(bot *model.Bot) error
	UpdateVoice(id, voice string) error
	FindByID(id string) (*model.Bot, error)
	List(offset, limit int) ([]model.Bot, int64, error)
	FindAll() ([]model.Bot, error)
	Stats(ids []string) (map[string]model.BotStats, error)
	Delete(id string) (*BotDeletion, error)
}

type botRepository struct {
	db *gorm.DB
}

// NewBotRepository 创建一个新的 BotRepository 实例。
func NewBotRepository(db *gorm.DB) BotRepository {
	return &botRepository{db: db}
}

func (r *botRepository) Create(bot *model.Bot) error {
	return r.db.Create(bot).Error
}

func (r *botRepository) Update(bot *model.Bot) error {
	return r.db.Model(bot).Select("Name", "SystemPrompt", "Temperature", "VoiceName", "UpdatedAt").Updates(bot).Error
}

func (r *botRepository) UpdateVoice(id, voice string) error {
	return r.db.Model(&model.Bot{}).Where("id = ?", id).Update("voice_name", voice).Error
}

func (r *botRepository) FindByID(id string) (*model.Bot, error) {
	var bot model.Bot
	if err := r.db.Where("id = ?", id).First(&bot).Error; err != nil {
		return nil, err
	}
	return &bot, nil
}

// List 按创建时间倒序分页查询。
func (r *botRepository) List(offset, limit int) ([]model.Bot, int64, error) {
	var total int64
	if err := r.db.Model(&model.Bot{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var bots []model.Bot
	err := r.db.Order("created_at DESC").Order("id").Offset(offset).Limit(limit).Find(&bots).Error
	return bots, total, err
}

func (r *botRepository) FindAll() ([]model.Bot, error) {
	var bots []model.Bot
	err := r.db.Order("created_at").Find(&bots).Error
	return bots, err
}

// Stats 统计每个机器人的会话数与消息数。
func (r *botRepository) Stats(ids []string) (map[string]model.BotStats, error) {
	result := make(map[string]model.BotStats, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var rows []model.BotStats
	err := r.db.Model(&model.Conversation{}).
		Select("conversations.bot_id AS bot_id, COUNT(DISTINCT conversations.id) AS conversation_count, COUNT(messages.id) AS message_count").
		Joins("LEFT JOIN messages ON messages.conversation_id = conversations.id").
		Where("conversations.bot_id IN ?", ids).
		Group("conversations.bot_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		result[row.BotID] = row
	}
	return result, nil
}

// Delete 在一个事务中删除机器人及其全部会话和消息。
func (r *botRepository) Delete(id string) (*BotDeletion, error) {
	deletion := &BotDeletion{}
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Conversation{}).Where("bot_id = ?", id).Pluck("id", &deletion.ConversationIDs).Error; err != nil {
			return err
		}
		if len(deletion.ConversationIDs) > 0 {
			if err := tx.Model(&model.Message{}).
				Where("conversation_id IN ? AND audio_object IS NOT NULL", deletion.ConversationIDs).
				Pluck("audio_object", &deletion.AudioObjects).Error; err != nil {
				return err
			}
			if err := tx.Where("conversation_id IN ?", deletion.ConversationIDs).Delete(&model.Message{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", deletion.ConversationIDs).Delete(&model.Conversation{}).Error; err != nil {
				return err
			}
		}
		res := tx.Where("id = ?", id).Delete(&model.Bot{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deletion, nil
}
