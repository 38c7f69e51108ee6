package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront/pkg/enums"
)

// Transaction rows are append-only.
type Transaction struct {
	ID          uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID               `gorm:"column:order_id;type:uuid;not null;index"`
	Type        enums.TransactionType   `gorm:"column:type;not null"`
	Status      enums.TransactionStatus `gorm:"column:status;not null"`
	AmountCents int64                   `gorm:"column:amount_cents;not null"`
	Currency    string                  `gorm:"column:currency;not null"`
	Provider    enums.PaymentProvider   `gorm:"column:provider;not null"`
	ProviderRef *string                 `gorm:"column:provider_ref"`
	CreatedAt   time.Time               `gorm:"column:created_at;autoCreateTime"`
}

func (t *Transaction) BeforeCreate(*gorm.DB) error {
	ensureID(&t.ID)
	return nil
}

// Refund links a REFUND transaction to the CHARGE transaction it returns money from.
type Refund struct {
	ID                  uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OrderID             uuid.UUID               `gorm:"column:order_id;type:uuid;not null;index"`
	TransactionID       uuid.UUID               `gorm:"column:transaction_id;type:uuid;not null;index"`
	RefundTransactionID uuid.UUID               `gorm:"column:refund_transaction_id;type:uuid;not null"`
	AmountCents         int64                   `gorm:"column:amount_cents;not null"`
	Status              enums.TransactionStatus `gorm:"column:status;not null"`
	Reason              string                  `gorm:"column:reason;not null"`
	ProviderRef         *string                 `gorm:"column:provider_ref"`
	CreatedAt           time.Time               `gorm:"column:created_at;autoCreateTime"`
}

func (r *Refund) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}
