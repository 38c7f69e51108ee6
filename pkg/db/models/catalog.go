package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Product is a read-only catalog entry.
type Product struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name       string    `gorm:"column:name;not null"`
	Slug       string    `gorm:"column:slug;not null;uniqueIndex"`
	PriceCents int64     `gorm:"column:price_cents;not null"`
	Currency   string    `gorm:"column:currency;not null;default:'usd'"`
	IsActive   bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// ProductVariant overrides the product price when PriceCents is set.
type ProductVariant struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProductID  uuid.UUID `gorm:"column:product_id;type:uuid;not null;index"`
	SKU        string    `gorm:"column:sku;not null;uniqueIndex"`
	Size       string    `gorm:"column:size"`
	Color      string    `gorm:"column:color"`
	PriceCents *int64    `gorm:"column:price_cents"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (v *ProductVariant) BeforeCreate(*gorm.DB) error {
	ensureID(&v.ID)
	return nil
}

type ProductImage struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;not null;index"`
	URL       string    `gorm:"column:url;not null"`
	IsPrimary bool      `gorm:"column:is_primary;not null;default:false"`
	Position  int       `gorm:"column:position;not null;default:0"`
}

func (i *ProductImage) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}

// InventoryItem holds stock per variant. Reserved units belong to open orders.
type InventoryItem struct {
	VariantID    uuid.UUID `gorm:"column:variant_id;type:uuid;primaryKey"`
	AvailableQty int       `gorm:"column:available_qty;not null;default:0"`
	ReservedQty  int       `gorm:"column:reserved_qty;not null;default:0"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
