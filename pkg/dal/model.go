package dal

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Model 基础模型，主键为 UUID 字符串
type Model struct {
	ID        string    `gorm:"primaryKey;size:36" json:"_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// BeforeCreate 未指定主键时生成 UUID
func (m *Model) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// QueryOption 查询选项
type QueryOption func(*gorm.DB) *gorm.DB

// WithOrder 排序
func WithOrder(order string) QueryOption {
	return func(db *gorm.DB) *gorm.DB { return db.Order(order) }
}
