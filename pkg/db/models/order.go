package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront/pkg/enums"
)

type Address struct {
	FullName   string `json:"fullName"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

type Contact struct {
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// Order totals satisfy total_cents = subtotal_cents + tax_cents + shipping_fee_cents
// (also enforced by a CHECK constraint).
type Order struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	UserID           uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	Status           enums.OrderStatus   `gorm:"column:status;not null"`
	PaymentStatus    enums.PaymentStatus `gorm:"column:payment_status;not null"`
	PaymentMethod    enums.PaymentMethod `gorm:"column:payment_method;not null"`
	Currency         string              `gorm:"column:currency;not null"`
	SubtotalCents    int64               `gorm:"column:subtotal_cents;not null"`
	TaxCents         int64               `gorm:"column:tax_cents;not null"`
	ShippingFeeCents int64               `gorm:"column:shipping_fee_cents;not null"`
	TotalCents       int64               `gorm:"column:total_cents;not null"`
	ShippingAddress  Address             `gorm:"column:shipping_address;type:jsonb;serializer:json;not null"`
	Contact          Contact             `gorm:"column:contact;type:jsonb;serializer:json;not null"`
	Notes            string              `gorm:"column:notes"`
	CancelledAt      *time.Time          `gorm:"column:cancelled_at"`
	DeliveredAt      *time.Time          `gorm:"column:delivered_at"`
	Items            []OrderItem         `gorm:"foreignKey:OrderID"`
	Transactions     []Transaction       `gorm:"foreignKey:OrderID"`
	Refunds          []Refund            `gorm:"foreignKey:OrderID"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// OrderItem is a frozen copy of the cart line at order time.
type OrderItem struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID      uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	VariantID      uuid.UUID `gorm:"column:variant_id;type:uuid;not null"`
	SKU            string    `gorm:"column:sku"`
	Name           string    `gorm:"column:name;not null"`
	Size           string    `gorm:"column:size"`
	Color          string    `gorm:"column:color"`
	Image          string    `gorm:"column:image"`
	UnitPriceCents int64     `gorm:"column:unit_price_cents;not null"`
	Quantity       int       `gorm:"column:quantity;not null"`
	LineTotalCents int64     `gorm:"column:line_total_cents;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
