package model

import "time"

// TTSUsage 按月累计语音合成字符数。
type TTSUsage struct {
	ID              uint       `gorm:"primaryKey" json:"-"`
	Month           string     `gorm:"type:varchar(7);uniqueIndex;not null" json:"month"` // 2006-01
	CharactersUsed  int        `gorm:"not null;default:0" json:"charactersUsed"`
	CharactersLimit int        `gorm:"not null" json:"charactersLimit"`
	AlertSentAt     *time.Time `json:"alertSentAt,omitempty"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

func (TTSUsage) TableName() string {
	return "tts_usage"
}

// Percentage 返回已用额度百分比。
func (u *TTSUsage) Percentage() float64 {
	if u.CharactersLimit <= 0 {
		return 0
	}
	return float64(u.CharactersUsed) / float64(u.CharactersLimit) * 100
}

// Remaining 返回剩余字符数，不小于 0。
func (u *TTSUsage) Remaining() int {
	if r := u.CharactersLimit - u.CharactersUsed; r > 0 {
		return r
	}
	return 0
}

// NearLimit 用量达到 80% 及以上。
func (u *TTSUsage) NearLimit() bool {
	return u.Percentage() >= 80
}

// OverLimit 用量达到或超过上限。
func (u *TTSUsage) OverLimit() bool {
	return u.CharactersLimit > 0 && u.CharactersUsed >= u.CharactersLimit
}

// UsageReport 是对外展示的月度用量报告。
type UsageReport struct {
	Month           string  `json:"month"`
	CharactersUsed  int     `json:"charactersUsed"`
	CharactersLimit int     `json:"charactersLimit"`
	Remaining       int     `json:"remaining"`
	Percentage      float64 `json:"percentage"`
	NearLimit       bool    `json:"nearLimit"`
	OverLimit       bool    `json:"overLimit"`
}

// Report 生成用量报告。
func (u *TTSUsage) Report() UsageReport {
	return UsageReport{
		Month:           u.Month,
		CharactersUsed:  u.CharactersUsed,
		CharactersLimit: u.CharactersLimit,
		Remaining:       u.Remaining(),
		Percentage:      u.Percentage(),
		NearLimit:       u.NearLimit(),
		OverLimit:       u.OverLimit(),
	}
}
