package model

import (
	"time"

	"gorm.io/gorm"
)

// CheckoutRecord 结算历史，由 Kafka 消费者异步写入。
type CheckoutRecord struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	CheckoutID string `gorm:"size:64;uniqueIndex;not null" json:"checkout_id"`
	SessionID  string `gorm:"size:64;index;not null" json:"session_id"`
	Kind       string `gorm:"size:32;not null" json:"kind"`
	Succeeded  int    `gorm:"not null;default:0" json:"succeeded"`
	Failed     int    `gorm:"not null;default:0" json:"failed"`
	Message    string `gorm:"size:255" json:"message"`
}

func (CheckoutRecord) TableName() string { return "checkout_records" }

// Setting 简单的 key/value 配置行，目前只存上游 baseURL。
type Setting struct {
	Key       string    `gorm:"primarykey;size:64" json:"key"`
	Value     string    `gorm:"size:512;not null" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Setting) TableName() string { return "settings" }
