package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront/pkg/enums"
)

type ReturnRequest struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index"`
	OrderItemID    uuid.UUID          `gorm:"column:order_item_id;type:uuid;not null"`
	UserID         uuid.UUID          `gorm:"column:user_id;type:uuid;not null;index"`
	Reason         string             `gorm:"column:reason;not null"`
	Status         enums.ReturnStatus `gorm:"column:status;not null"`
	ResolutionNote *string            `gorm:"column:resolution_note"`
	RefundID       *uuid.UUID         `gorm:"column:refund_id;type:uuid"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *ReturnRequest) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}
